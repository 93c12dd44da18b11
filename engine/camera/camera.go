package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
)

// Camera is an orbit camera circling a target point.
// Position is derived from spherical coordinates (radius, azimuth, elevation) around the target,
// and the view and projection matrices are recomputed on every mutation.
type Camera interface {
	// Position returns the world-space eye position.
	//
	// Returns:
	//   - [3]float32: the eye position
	Position() [3]float32

	// Target returns the point the camera looks at.
	//
	// Returns:
	//   - [3]float32: the target position
	Target() [3]float32

	// SetTarget moves the orbit center.
	//
	// Parameters:
	//   - x, y, z: the new target position
	SetTarget(x, y, z float32)

	// Radius returns the current orbit distance.
	//
	// Returns:
	//   - float32: distance between eye and target
	Radius() float32

	// Orbit rotates the eye around the target. Elevation is clamped short of the poles.
	//
	// Parameters:
	//   - dAzimuth: horizontal rotation in radians
	//   - dElevation: vertical rotation in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the eye toward (positive delta) or away from the target, clamped to the radius limits.
	//
	// Parameters:
	//   - delta: distance to move
	Zoom(delta float32)

	// SetAspect updates the projection aspect ratio, typically after a surface resize.
	// Non-positive values are ignored.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// ViewMatrix returns the column-major view matrix.
	//
	// Returns:
	//   - [16]float32: the view matrix
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the column-major perspective matrix.
	//
	// Returns:
	//   - [16]float32: the projection matrix
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns projection * view.
	//
	// Returns:
	//   - [16]float32: the combined matrix
	ViewProjectionMatrix() [16]float32

	// Globals packs the camera into the per-scene uniform bound at group 0.
	//
	// Parameters:
	//   - lightDir: direction the key light travels
	//
	// Returns:
	//   - material.GPUGlobals: the uniform value
	Globals(lightDir [3]float32) material.GPUGlobals
}

type cameraImpl struct {
	mu *sync.Mutex

	target    [3]float32
	position  [3]float32
	up        [3]float32
	radius    float32
	azimuth   float32
	elevation float32

	minRadius float32
	maxRadius float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32
}

var _ Camera = &cameraImpl{}

const maxElevation = math.Pi/2 - 0.05

// NewCamera creates an orbit camera looking at the origin from a 30 degree elevation.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:        &sync.Mutex{},
		up:        [3]float32{0, 1, 0},
		radius:    10,
		elevation: float32(math.Pi / 6),
		minRadius: 0.5,
		maxRadius: 1000,
		fov:       45.0 * (math.Pi / 180.0),
		aspect:    1.0,
		near:      0.1,
		far:       500.0,
	}
	for _, option := range options {
		option(c)
	}
	c.radius = clamp(c.radius, c.minRadius, c.maxRadius)
	c.elevation = clamp(c.elevation, -maxElevation, maxElevation)
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) SetTarget(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = [3]float32{x, y, z}
	c.updateMatrices()
}

func (c *cameraImpl) Radius() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radius
}

func (c *cameraImpl) Orbit(dAzimuth, dElevation float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azimuth += dAzimuth
	c.elevation = clamp(c.elevation+dElevation, -maxElevation, maxElevation)
	c.updateMatrices()
}

func (c *cameraImpl) Zoom(delta float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radius = clamp(c.radius-delta, c.minRadius, c.maxRadius)
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Globals(lightDir [3]float32) material.GPUGlobals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return material.GPUGlobals{
		ViewProj:       c.viewProjectionMatrix,
		CameraPosition: [4]float32{c.position[0], c.position[1], c.position[2], 1},
		LightDirection: [4]float32{lightDir[0], lightDir[1], lightDir[2], 0},
	}
}

// updateMatrices recomputes the eye from spherical coordinates, then the view, projection
// and view-projection matrices. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	cosElev := float32(math.Cos(float64(c.elevation)))
	sinElev := float32(math.Sin(float64(c.elevation)))
	cosAzim := float32(math.Cos(float64(c.azimuth)))
	sinAzim := float32(math.Sin(float64(c.azimuth)))

	c.position = [3]float32{
		c.target[0] + c.radius*cosElev*sinAzim,
		c.target[1] + c.radius*sinElev,
		c.target[2] + c.radius*cosElev*cosAzim,
	}

	common.LookAt(c.viewMatrix[:],
		c.position[0], c.position[1], c.position[2],
		c.target[0], c.target[1], c.target[2],
		c.up[0], c.up[1], c.up[2],
	)
	common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
