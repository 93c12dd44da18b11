package bind_group_provider

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrMissingResource is returned by Init when a texture or sampler binding has nothing to bind.
	ErrMissingResource = errors.New("bind_group_provider: binding has no resource")

	// ErrUnknownBinding is returned when writing to a binding that has no buffer.
	ErrUnknownBinding = errors.New("bind_group_provider: binding has no buffer")
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// bindGroup is the GPU bind group, or nil before Init.
	bindGroup *wgpu.BindGroup
	// buffers holds the buffers created by Init, keyed by binding index. They are owned.
	buffers map[int]*wgpu.Buffer
	// data holds the initial contents of buffer bindings, written by Init.
	data map[int][]byte
	// textures holds the textures bound per binding index.
	textures map[int]*gpu.Texture
	// owned marks the textures this provider frees on Release. The rest are borrowed
	// from a shared cache.
	owned map[int]bool
	// samplers holds the samplers bound per binding index. They are always borrowed.
	samplers map[int]*wgpu.Sampler
}

// BindGroupProvider holds one bind group and the GPU objects it binds.
//
// Buffers are created by Init from the layout entries and owned by the provider. Textures
// may be owned or borrowed, samplers are always borrowed: Release frees only what the
// provider owns, leaving shared objects to the cache they came from.
//
// Usage pattern:
//  1. Create the provider with the textures, samplers and initial buffer data it binds
//  2. Call Init with the layout and its entries to create buffers and the bind group
//  3. Bind BindGroup() during draws and Write() to update uniforms
//  4. Release the provider with the device that created it
type BindGroupProvider interface {
	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Init creates the buffers and the bind group described by entries. Texture and sampler
	// bindings must have been supplied at construction.
	//
	// Parameters:
	//   - device: the device to create objects with
	//   - layout: the bind group layout the entries describe
	//   - entries: the layout entries
	//
	// Returns:
	//   - error: ErrMissingResource, or a device error; nothing is left allocated on error
	Init(device gpu.Device, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupLayoutEntry) error

	// BindGroup returns the created bind group, or nil before Init.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup() *wgpu.BindGroup

	// Buffer returns the buffer created for a binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(binding int) *wgpu.Buffer

	// Texture returns the texture bound at a binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *gpu.Texture: the texture or nil
	Texture(binding int) *gpu.Texture

	// Sampler returns the sampler bound at a binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Sampler: the sampler or nil
	Sampler(binding int) *wgpu.Sampler

	// Write queues data into the buffer of a binding.
	//
	// Parameters:
	//   - device: the device that owns the buffer
	//   - binding: the binding index
	//   - offset: byte offset into the buffer
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrUnknownBinding or the device's error
	Write(device gpu.Device, binding int, offset uint64, data []byte) error

	// Release frees the bind group, the buffers and the owned textures.
	//
	// Parameters:
	//   - device: the device that created the objects
	Release(device gpu.Device)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: a debug label used for the objects Init creates
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		buffers:  make(map[int]*wgpu.Buffer),
		data:     make(map[int][]byte),
		textures: make(map[int]*gpu.Texture),
		owned:    make(map[int]bool),
		samplers: make(map[int]*wgpu.Sampler),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Init(device gpu.Device, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupLayoutEntry) error {
	var created []int
	fail := func(err error) error {
		for _, binding := range created {
			device.Free(p.buffers[binding])
			delete(p.buffers, binding)
		}
		return err
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, entry := range entries {
		binding := int(entry.Binding)

		isTexture := entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined
		isSampler := entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined

		if isTexture {
			tex := p.textures[binding]
			if tex == nil || tex.View == nil {
				return fail(fmt.Errorf("%w: %s texture binding %d", ErrMissingResource, p.label, binding))
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tex.View,
			}
		} else if isSampler {
			samp := p.samplers[binding]
			if samp == nil {
				return fail(fmt.Errorf("%w: %s sampler binding %d", ErrMissingResource, p.label, binding))
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Sampler: samp,
			}
		} else {
			var usage wgpu.BufferUsage
			switch entry.Buffer.Type {
			case wgpu.BufferBindingTypeStorage, wgpu.BufferBindingTypeReadOnlyStorage:
				usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
			default:
				usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			}

			buf := p.buffers[binding]
			if buf == nil {
				size := entry.Buffer.MinBindingSize
				if n := uint64(len(p.data[binding])); n > size {
					size = n
				}
				var err error
				buf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
					Label: p.label + " Buffer",
					Size:  size,
					Usage: usage,
				})
				if err != nil {
					return fail(err)
				}
				created = append(created, binding)
				p.buffers[binding] = buf
			}
			if data := p.data[binding]; len(data) > 0 {
				if err := device.WriteBuffer(buf, 0, data); err != nil {
					return fail(err)
				}
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		}
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.label + " Bind Group",
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return fail(err)
	}
	p.bindGroup = bindGroup
	return nil
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Texture(binding int) *gpu.Texture {
	return p.textures[binding]
}

func (p *bindGroupProvider) Sampler(binding int) *wgpu.Sampler {
	return p.samplers[binding]
}

func (p *bindGroupProvider) Write(device gpu.Device, binding int, offset uint64, data []byte) error {
	buf := p.buffers[binding]
	if buf == nil {
		return fmt.Errorf("%w: %s binding %d", ErrUnknownBinding, p.label, binding)
	}
	return device.WriteBuffer(buf, offset, data)
}

func (p *bindGroupProvider) Release(device gpu.Device) {
	if p.bindGroup != nil {
		device.Free(p.bindGroup)
		p.bindGroup = nil
	}
	for i, buf := range p.buffers {
		device.Free(buf)
		delete(p.buffers, i)
	}
	for i, tex := range p.textures {
		if p.owned[i] {
			device.Free(tex)
		}
		delete(p.textures, i)
	}
	clear(p.owned)
	clear(p.samplers)
}
