package pipeline

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/cogentcore/webgpu/wgpu"
)

// StateBuilderOption is a functional option used to configure a State during construction.
type StateBuilderOption func(*State)

// WithLabel sets the debug label. The label does not affect the pipeline key.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - StateBuilderOption: a function that sets the label
func WithLabel(label string) StateBuilderOption {
	return func(s *State) {
		s.Label = label
	}
}

// WithVertexModule sets the vertex shader module key and entry point.
//
// Parameters:
//   - key: the shader module cache key
//   - entry: the entry point name
//
// Returns:
//   - StateBuilderOption: a function that sets the vertex stage
func WithVertexModule(key descriptor_key.Key, entry string) StateBuilderOption {
	return func(s *State) {
		s.VertexModule = key
		s.VertexEntry = entry
	}
}

// WithFragmentModule sets the fragment shader module key and entry point.
//
// Parameters:
//   - key: the shader module cache key
//   - entry: the entry point name
//
// Returns:
//   - StateBuilderOption: a function that sets the fragment stage
func WithFragmentModule(key descriptor_key.Key, entry string) StateBuilderOption {
	return func(s *State) {
		s.FragmentModule = key
		s.FragmentEntry = entry
	}
}

// WithVertexBuffers sets the vertex buffer layouts by slot.
//
// Parameters:
//   - layouts: the layouts, the instance slot included
//
// Returns:
//   - StateBuilderOption: a function that sets the vertex buffer layouts
func WithVertexBuffers(layouts ...wgpu.VertexBufferLayout) StateBuilderOption {
	return func(s *State) {
		s.VertexBuffers = layouts
	}
}

// WithBindGroup sets the layout entries of one bind group, growing the group list as needed.
//
// Parameters:
//   - group: the group index
//   - entries: the layout entries
//
// Returns:
//   - StateBuilderOption: a function that sets the bind group entries
func WithBindGroup(group int, entries ...wgpu.BindGroupLayoutEntry) StateBuilderOption {
	return func(s *State) {
		for len(s.BindGroups) <= group {
			s.BindGroups = append(s.BindGroups, nil)
		}
		s.BindGroups[group] = entries
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - StateBuilderOption: a function that sets the depth test enabled state for this pipeline
func WithDepthTestEnabled(enabled bool) StateBuilderOption {
	return func(s *State) {
		s.DepthTest = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - StateBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) StateBuilderOption {
	return func(s *State) {
		s.DepthWrite = enabled
	}
}

// WithDepthFormat sets the depth attachment format. wgpu.TextureFormatUndefined removes
// the depth stencil state.
//
// Parameters:
//   - format: the depth format
//
// Returns:
//   - StateBuilderOption: a function that sets the depth format
func WithDepthFormat(format wgpu.TextureFormat) StateBuilderOption {
	return func(s *State) {
		s.DepthFormat = format
	}
}

// WithDepthBias sets the depth bias parameters for this pipeline.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - StateBuilderOption: a function that sets the depth bias parameters for this pipeline
func WithDepthBias(bias int32, slopeScale float32) StateBuilderOption {
	return func(s *State) {
		s.DepthBias = bias
		s.DepthBiasSlopeScale = slopeScale
	}
}

// WithBlendEnabled turns blending on with DefaultBlendState, or off.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - StateBuilderOption: a function that sets the blend state for this pipeline
func WithBlendEnabled(enabled bool) StateBuilderOption {
	return func(s *State) {
		if !enabled {
			s.Blend = nil
			return
		}
		if s.Blend == nil {
			b := DefaultBlendState
			s.Blend = &b
		}
	}
}

// WithBlendState sets the blend state for this pipeline, enabling blending.
//
// Parameters:
//   - blendState: the blend state to use for this pipeline
//
// Returns:
//   - StateBuilderOption: a function that sets the blend state for this pipeline
func WithBlendState(blendState wgpu.BlendState) StateBuilderOption {
	return func(s *State) {
		s.Blend = &blendState
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use for this pipeline (e.g., wgpu.CullModeNone, wgpu.CullModeFront, wgpu.CullModeBack)
//
// Returns:
//   - StateBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode wgpu.CullMode) StateBuilderOption {
	return func(s *State) {
		s.CullMode = mode
	}
}

// WithTopology sets the primitive topology and, for strip topologies, the strip index format.
//
// Parameters:
//   - topology: the primitive topology to use for this pipeline
//   - stripIndexFormat: the index format of strip topologies, ignored otherwise
//
// Returns:
//   - StateBuilderOption: a function that sets the primitive topology for this pipeline
func WithTopology(topology wgpu.PrimitiveTopology, stripIndexFormat wgpu.IndexFormat) StateBuilderOption {
	return func(s *State) {
		s.Topology = topology
		s.StripIndexFormat = wgpu.IndexFormatUndefined
		if isStrip(topology) {
			s.StripIndexFormat = stripIndexFormat
		}
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
//
// Parameters:
//   - frontFace: the front face to use for this pipeline (e.g., wgpu.FrontFaceCCW, wgpu.FrontFaceCW)
//
// Returns:
//   - StateBuilderOption: a function that sets the front face for this pipeline
func WithFrontFace(frontFace wgpu.FrontFace) StateBuilderOption {
	return func(s *State) {
		s.FrontFace = frontFace
	}
}

// WithWriteMask sets the color write mask for this pipeline.
//
// Parameters:
//   - writeMask: the color write mask to use for this pipeline
//
// Returns:
//   - StateBuilderOption: a function that sets the color write mask for this pipeline
func WithWriteMask(writeMask wgpu.ColorWriteMask) StateBuilderOption {
	return func(s *State) {
		s.WriteMask = writeMask
	}
}

// WithColorFormat sets the color target format, normally the surface format.
//
// Parameters:
//   - format: the color target format
//
// Returns:
//   - StateBuilderOption: a function that sets the color format
func WithColorFormat(format wgpu.TextureFormat) StateBuilderOption {
	return func(s *State) {
		s.ColorFormat = format
	}
}

// WithSampleCount sets the MSAA sample count.
//
// Parameters:
//   - count: the sample count (1 disables MSAA)
//
// Returns:
//   - StateBuilderOption: a function that sets the sample count
func WithSampleCount(count uint32) StateBuilderOption {
	return func(s *State) {
		s.SampleCount = count
	}
}
