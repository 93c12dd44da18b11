package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// ParsePresentMode maps the config spelling ("vsync", "uncapped") to a PresentMode.
func ParsePresentMode(s string) (PresentMode, error) {
	switch s {
	case "vsync", "":
		return PresentModeVSync, nil
	case "uncapped":
		return PresentModeUncapped, nil
	default:
		return 0, fmt.Errorf("renderer: unknown present mode %q", s)
	}
}

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// WebGPU guarantees support for 1 (off) and 4; 8 and 16 are adapter-dependent.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8x multisample anti-aliasing.
	MSAA8x MSAASampleCount = 8

	// MSAA16x enables 16x multisample anti-aliasing.
	MSAA16x MSAASampleCount = 16
)

// Target describes the attachments of the main pass. Pipelines drawn into it must be
// created with the same formats and sample count.
type Target struct {
	Color   wgpu.TextureFormat
	Depth   wgpu.TextureFormat
	Samples uint32
}

// RendererBackend is the GPU API behind a Renderer.
type RendererBackend interface {
	// Device returns the object factory for caches and batchers.
	Device() gpu.Device

	// ConfigureSurface (re)creates the swapchain and the MSAA and depth attachments.
	ConfigureSurface(width, height int) error

	// SetPresentMode takes effect at the next ConfigureSurface.
	SetPresentMode(mode PresentMode)

	SetClearColor(c wgpu.Color)

	// Target returns the attachment formats chosen by the last ConfigureSurface.
	Target() Target

	// BeginFrame acquires the next surface image and opens the main pass.
	BeginFrame() (frame.PassEncoder, error)

	// EndFrame closes the pass and submits it.
	EndFrame() error

	// Present shows the acquired image.
	Present()

	// Release frees the surface, the device and the instance.
	Release()
}
