package pipeline

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// Descriptor builds the wgpu render pipeline descriptor for a state.
//
// Parameters:
//   - s: the pipeline state
//   - vs: the vertex shader module
//   - fs: the fragment shader module
//   - layout: the pipeline layout
//
// Returns:
//   - *wgpu.RenderPipelineDescriptor: the descriptor ready for device creation
func Descriptor(s State, vs, fs *wgpu.ShaderModule, layout *wgpu.PipelineLayout) *wgpu.RenderPipelineDescriptor {
	target := wgpu.ColorTargetState{
		Format:    s.ColorFormat,
		WriteMask: s.WriteMask,
	}
	if s.Blend != nil {
		blend := *s.Blend
		target.Blend = &blend
	}

	primitive := wgpu.PrimitiveState{
		Topology:  s.Topology,
		FrontFace: s.FrontFace,
		CullMode:  s.CullMode,
	}
	if isStrip(s.Topology) {
		primitive.StripIndexFormat = s.StripIndexFormat
	}

	desc := &wgpu.RenderPipelineDescriptor{
		Label:  s.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: s.VertexEntry,
			Buffers:    s.VertexBuffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: s.FragmentEntry,
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: primitive,
		Multisample: wgpu.MultisampleState{
			Count: max(s.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
	}

	if s.DepthFormat != wgpu.TextureFormatUndefined {
		depthCompare := wgpu.CompareFunctionLess
		if !s.DepthTest {
			depthCompare = wgpu.CompareFunctionAlways
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:              s.DepthFormat,
			DepthWriteEnabled:   s.DepthWrite,
			DepthCompare:        depthCompare,
			DepthBias:           s.DepthBias,
			DepthBiasSlopeScale: s.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}
	return desc
}

func isStrip(t wgpu.PrimitiveTopology) bool {
	return t == wgpu.PrimitiveTopologyLineStrip || t == wgpu.PrimitiveTopologyTriangleStrip
}
