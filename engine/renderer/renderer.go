package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-instancer/engine/window"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu     *sync.Mutex
	logger *log.Logger

	backendType RendererBackendType
	backend     RendererBackend

	// pre-creation config collected from builder options
	forceFallbackAdapter bool
	presentMode          PresentMode
	msaa                 MSAASampleCount
	clearColor           *wgpu.Color

	width, height int
}

// Renderer owns the window surface and the main render pass.
//
// A frame is BeginFrame, any number of recordings into the returned pass, EndFrame and
// Present. Resource creation goes through Device, which the arenas and batchers share.
type Renderer interface {
	// Device returns the GPU object factory backing this renderer.
	//
	// Returns:
	//   - gpu.Device: the device
	Device() gpu.Device

	// Target returns the formats and sample count of the main pass.
	//
	// Returns:
	//   - Target: the attachment description
	Target() Target

	// Resize reconfigures the surface. Zero sizes (a minimized window) are ignored.
	//
	// Parameters:
	//   - width: the new surface width in pixels
	//   - height: the new surface height in pixels
	//
	// Returns:
	//   - error: an attachment creation error
	Resize(width, height int) error

	// SetPresentMode changes the present mode and reconfigures the surface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	//
	// Returns:
	//   - error: an attachment creation error
	SetPresentMode(mode PresentMode) error

	// BeginFrame acquires the next surface image and opens the main pass.
	//
	// Returns:
	//   - frame.PassEncoder: the pass to record into until EndFrame
	//   - error: ErrFrameInFlight or an acquisition error
	BeginFrame() (frame.PassEncoder, error)

	// EndFrame closes and submits the main pass.
	//
	// Returns:
	//   - error: a submission error
	EndFrame() error

	// Present shows the submitted frame.
	Present()

	// Release frees every GPU object owned by the renderer.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a renderer drawing into the window's surface and configures the
// surface at the window's current size.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - win: the window providing the surface
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: an adapter, device or surface error
func NewRenderer(backendType RendererBackendType, win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	if win == nil {
		panic("renderer: NewRenderer requires a window")
	}
	r := &renderer{
		mu:          &sync.Mutex{},
		logger:      logger.For("renderer"),
		backendType: backendType,
		msaa:        MSAA4x,
		presentMode: PresentModeVSync,
	}

	// options first so adapter flags are known before the backend requests one
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		b, err := newWGPURendererBackend(win.SurfaceDescriptor(), r.forceFallbackAdapter, r.msaa)
		if err != nil {
			return nil, err
		}
		r.backend = b
	}

	r.backend.SetPresentMode(r.presentMode)
	if r.clearColor != nil {
		r.backend.SetClearColor(*r.clearColor)
	}
	r.width, r.height = win.Width(), win.Height()
	if err := r.backend.ConfigureSurface(r.width, r.height); err != nil {
		r.backend.Release()
		return nil, err
	}

	t := r.backend.Target()
	r.logger.Info("renderer ready", "width", r.width, "height", r.height, "format", t.Color, "msaa", t.Samples)
	return r, nil
}

func (r *renderer) Device() gpu.Device {
	return r.backend.Device()
}

func (r *renderer) Target() Target {
	return r.backend.Target()
}

func (r *renderer) Resize(width, height int) error {
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
	return r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) error {
	r.backend.SetPresentMode(mode)
	r.mu.Lock()
	w, h := r.width, r.height
	r.mu.Unlock()
	if err := r.backend.ConfigureSurface(w, h); err != nil {
		return fmt.Errorf("renderer: present mode: %w", err)
	}
	return nil
}

func (r *renderer) BeginFrame() (frame.PassEncoder, error) {
	return r.backend.BeginFrame()
}

func (r *renderer) EndFrame() error {
	return r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) Release() {
	r.backend.Release()
}
