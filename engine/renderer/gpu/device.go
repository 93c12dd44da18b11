// Package gpu narrows the wgpu device and queue to the object factory the caches and
// batchers need, so they can be exercised without a GPU.
package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Releasable is any GPU object with a Release method.
type Releasable interface {
	Release()
}

// Texture pairs a texture with its default view and extent.
type Texture struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Width   uint32
	Height  uint32
	Format  wgpu.TextureFormat
}

// Release frees the view and then the texture.
func (t *Texture) Release() {
	if t.View != nil {
		t.View.Release()
	}
	if t.Texture != nil {
		t.Texture.Release()
	}
}

// Device creates and frees GPU objects and writes to GPU memory.
type Device interface {
	// CreateShaderModule compiles WGSL into a shader module.
	//
	// Parameters:
	//   - desc: the module descriptor holding the WGSL source
	//
	// Returns:
	//   - *wgpu.ShaderModule: the compiled module
	//   - error: an error if compilation fails
	CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error)

	// CreateBindGroupLayout creates a bind group layout.
	//
	// Parameters:
	//   - desc: the layout descriptor
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout
	//   - error: an error if creation fails
	CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	//
	// Parameters:
	//   - desc: the pipeline layout descriptor
	//
	// Returns:
	//   - *wgpu.PipelineLayout: the layout
	//   - error: an error if creation fails
	CreatePipelineLayout(desc *wgpu.PipelineLayoutDescriptor) (*wgpu.PipelineLayout, error)

	// CreateRenderPipeline creates a render pipeline.
	//
	// Parameters:
	//   - desc: the render pipeline descriptor
	//
	// Returns:
	//   - *wgpu.RenderPipeline: the pipeline
	//   - error: an error if creation fails
	CreateRenderPipeline(desc *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error)

	// CreateBindGroup creates a bind group.
	//
	// Parameters:
	//   - desc: the bind group descriptor
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group
	//   - error: an error if creation fails
	CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error)

	// CreateBuffer creates an unmapped buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer
	//   - error: an error if creation fails
	CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - desc: the sampler descriptor
	//
	// Returns:
	//   - *wgpu.Sampler: the sampler
	//   - error: an error if creation fails
	CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error)

	// CreateTexture creates a 2D RGBA texture sized to data, uploads data and creates its view.
	// The staging data is validated before any GPU work.
	//
	// Parameters:
	//   - label: debug label
	//   - data: RGBA pixels and extent
	//   - format: the texture format (RGBA8Unorm or RGBA8UnormSrgb)
	//
	// Returns:
	//   - *Texture: the texture and its view
	//   - error: an error wrapping common.ErrFormatMismatch, or a creation error
	CreateTexture(label string, data common.TextureStagingData, format wgpu.TextureFormat) (*Texture, error)

	// WriteTexture replaces the full contents of an existing texture. The staging data
	// must match the texture's extent.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - data: RGBA pixels and extent
	//
	// Returns:
	//   - error: an error wrapping common.ErrFormatMismatch if the extents differ
	WriteTexture(tex *Texture, data common.TextureStagingData) error

	// WriteBuffer queues a write of data into buffer at offset.
	//
	// Parameters:
	//   - buffer: the destination buffer
	//   - offset: byte offset into the buffer
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write is rejected
	WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error

	// Free releases a GPU object.
	//
	// Parameters:
	//   - obj: the object to release; nil is ignored
	Free(obj Releasable)
}

type wgpuDevice struct {
	device *wgpu.Device
	queue  *wgpu.Queue
}

var _ Device = &wgpuDevice{}

// NewWGPUDevice wraps a wgpu device and its queue.
//
// Parameters:
//   - device: the device
//   - queue: the device queue
//
// Returns:
//   - Device: the wrapped device
func NewWGPUDevice(device *wgpu.Device, queue *wgpu.Queue) Device {
	if device == nil || queue == nil {
		panic("gpu: NewWGPUDevice requires a device and a queue")
	}
	return &wgpuDevice{device: device, queue: queue}
}

func (d *wgpuDevice) CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error) {
	return d.device.CreateShaderModule(desc)
}

func (d *wgpuDevice) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	return d.device.CreateBindGroupLayout(desc)
}

func (d *wgpuDevice) CreatePipelineLayout(desc *wgpu.PipelineLayoutDescriptor) (*wgpu.PipelineLayout, error) {
	return d.device.CreatePipelineLayout(desc)
}

func (d *wgpuDevice) CreateRenderPipeline(desc *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error) {
	return d.device.CreateRenderPipeline(desc)
}

func (d *wgpuDevice) CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	return d.device.CreateBindGroup(desc)
}

func (d *wgpuDevice) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	return d.device.CreateBuffer(desc)
}

func (d *wgpuDevice) CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	return d.device.CreateSampler(desc)
}

func (d *wgpuDevice) CreateTexture(label string, data common.TextureStagingData, format wgpu.TextureFormat) (*Texture, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("texture %q: %w", label, err)
	}

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}

	t := &Texture{Texture: tex, View: view, Width: data.Width, Height: data.Height, Format: format}
	d.writeTexture(t, data)
	return t, nil
}

func (d *wgpuDevice) WriteTexture(tex *Texture, data common.TextureStagingData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if err := data.CheckExtent(tex.Width, tex.Height); err != nil {
		return err
	}
	d.writeTexture(tex, data)
	return nil
}

func (d *wgpuDevice) writeTexture(tex *Texture, data common.TextureStagingData) {
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex.Texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (d *wgpuDevice) WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error {
	if buffer == nil {
		return fmt.Errorf("gpu: write of %d bytes to a nil buffer", len(data))
	}
	if len(data) == 0 {
		return nil
	}
	d.queue.WriteBuffer(buffer, offset, data)
	return nil
}

func (d *wgpuDevice) Free(obj Releasable) {
	if obj == nil {
		return
	}
	obj.Release()
}
