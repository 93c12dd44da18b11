package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithData sets the initial contents of a buffer binding. The buffer is sized to fit the
// data when it is larger than the layout's minimum binding size.
//
// Parameters:
//   - binding: the binding index
//   - data: the bytes written by Init
//
// Returns:
//   - BindGroupProviderOption: a function that sets the initial data for the binding
func WithData(binding int, data []byte) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.data[binding] = data
	}
}

// WithBuffer binds an existing buffer instead of letting Init create one. The provider
// takes ownership of it.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = buf
	}
}

// WithTexture binds a texture.
//
// Parameters:
//   - binding: the binding index
//   - tex: the texture and its view
//   - owned: whether Release frees the texture
//
// Returns:
//   - BindGroupProviderOption: a function that sets the texture for the specified binding
func WithTexture(binding int, tex *gpu.Texture, owned bool) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.textures[binding] = tex
		p.owned[binding] = owned
	}
}

// WithSampler binds a borrowed sampler.
//
// Parameters:
//   - binding: the binding index
//   - s: the sampler
//
// Returns:
//   - BindGroupProviderOption: a function that sets the sampler for the specified binding
func WithSampler(binding int, s *wgpu.Sampler) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.samplers[binding] = s
	}
}
