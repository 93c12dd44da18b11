// Package gputest provides recording fakes for gpu.Device and render pass encoding so that
// caching and batching can be tested without a GPU adapter.
package gputest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Object kinds counted by Device.
const (
	KindShaderModule    = "shader_module"
	KindBindGroupLayout = "bind_group_layout"
	KindPipelineLayout  = "pipeline_layout"
	KindRenderPipeline  = "render_pipeline"
	KindBindGroup       = "bind_group"
	KindBuffer          = "buffer"
	KindSampler         = "sampler"
	KindTexture         = "texture"
)

// BufferWrite is one recorded WriteBuffer call. Data is a copy.
type BufferWrite struct {
	Buffer *wgpu.Buffer
	Offset uint64
	Data   []byte
}

// Device is a gpu.Device that hands out distinct zero-valued wgpu handles and records
// every call. Handles it returns must never reach the real wgpu API.
type Device struct {
	mu       *sync.Mutex
	created  map[string]int
	freed    int
	failures map[string]error
	writes   []BufferWrite
	buffers  map[*wgpu.Buffer]*wgpu.BufferDescriptor
	shaders  []string
}

var _ gpu.Device = &Device{}

// NewDevice creates an empty recording device.
func NewDevice() *Device {
	return &Device{
		mu:       &sync.Mutex{},
		created:  make(map[string]int),
		failures: make(map[string]error),
		buffers:  make(map[*wgpu.Buffer]*wgpu.BufferDescriptor),
	}
}

// FailNext makes the next creation of kind return err.
func (d *Device) FailNext(kind string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[kind] = err
}

// Created returns how many objects of kind were created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Freed returns how many objects were passed to Free.
func (d *Device) Freed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freed
}

// Writes returns a copy of the recorded buffer writes in call order.
func (d *Device) Writes() []BufferWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]BufferWrite, len(d.writes))
	copy(out, d.writes)
	return out
}

// LastWrite returns the most recent write to buffer.
func (d *Device) LastWrite(buffer *wgpu.Buffer) (BufferWrite, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.writes) - 1; i >= 0; i-- {
		if d.writes[i].Buffer == buffer {
			return d.writes[i], true
		}
	}
	return BufferWrite{}, false
}

// BufferDescriptor returns the descriptor a buffer was created with.
func (d *Device) BufferDescriptor(buffer *wgpu.Buffer) (*wgpu.BufferDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.buffers[buffer]
	return desc, ok
}

// ShaderSources returns the WGSL of every compiled shader module in order.
func (d *Device) ShaderSources() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.shaders))
	copy(out, d.shaders)
	return out
}

func (d *Device) create(kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures[kind]; ok {
		delete(d.failures, kind)
		return err
	}
	d.created[kind]++
	return nil
}

func (d *Device) CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error) {
	if err := d.create(KindShaderModule); err != nil {
		return nil, err
	}
	if desc != nil && desc.WGSLDescriptor != nil {
		d.mu.Lock()
		d.shaders = append(d.shaders, desc.WGSLDescriptor.Code)
		d.mu.Unlock()
	}
	return &wgpu.ShaderModule{}, nil
}

func (d *Device) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	if err := d.create(KindBindGroupLayout); err != nil {
		return nil, err
	}
	return &wgpu.BindGroupLayout{}, nil
}

func (d *Device) CreatePipelineLayout(desc *wgpu.PipelineLayoutDescriptor) (*wgpu.PipelineLayout, error) {
	if err := d.create(KindPipelineLayout); err != nil {
		return nil, err
	}
	return &wgpu.PipelineLayout{}, nil
}

func (d *Device) CreateRenderPipeline(desc *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error) {
	if err := d.create(KindRenderPipeline); err != nil {
		return nil, err
	}
	return &wgpu.RenderPipeline{}, nil
}

func (d *Device) CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	if err := d.create(KindBindGroup); err != nil {
		return nil, err
	}
	return &wgpu.BindGroup{}, nil
}

func (d *Device) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	if err := d.create(KindBuffer); err != nil {
		return nil, err
	}
	buf := &wgpu.Buffer{}
	d.mu.Lock()
	cp := *desc
	d.buffers[buf] = &cp
	d.mu.Unlock()
	return buf, nil
}

func (d *Device) CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	if err := d.create(KindSampler); err != nil {
		return nil, err
	}
	return &wgpu.Sampler{}, nil
}

func (d *Device) CreateTexture(label string, data common.TextureStagingData, format wgpu.TextureFormat) (*gpu.Texture, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("texture %q: %w", label, err)
	}
	if err := d.create(KindTexture); err != nil {
		return nil, err
	}
	return &gpu.Texture{
		Texture: &wgpu.Texture{},
		View:    &wgpu.TextureView{},
		Width:   data.Width,
		Height:  data.Height,
		Format:  format,
	}, nil
}

func (d *Device) WriteTexture(tex *gpu.Texture, data common.TextureStagingData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	return data.CheckExtent(tex.Width, tex.Height)
}

func (d *Device) WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error {
	if buffer == nil {
		return fmt.Errorf("gputest: write of %d bytes to a nil buffer", len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.writes = append(d.writes, BufferWrite{Buffer: buffer, Offset: offset, Data: cp})
	return nil
}

// Free counts the release without calling into wgpu, since the handles are fakes.
func (d *Device) Free(obj gpu.Releasable) {
	if obj == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed++
}
