package pipeline

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/cogentcore/webgpu/wgpu"
)

// State is the complete value description of a render pipeline. Two states that
// canonicalize to the same key describe the same pipeline, so State holds only value
// data: shader modules are referenced by their cache keys, never by handle.
type State struct {
	// Label names the pipeline in debug output. It is not part of the identity.
	Label string `key:"-"`

	// VertexModule and FragmentModule are shader module cache keys.
	VertexModule   descriptor_key.Key
	VertexEntry    string
	FragmentModule descriptor_key.Key
	FragmentEntry  string

	// VertexBuffers lists the vertex buffer layouts by slot, including the instance slot.
	VertexBuffers []wgpu.VertexBufferLayout
	// BindGroups lists the layout entries of every bind group by group index.
	BindGroups [][]wgpu.BindGroupLayoutEntry

	Topology         wgpu.PrimitiveTopology
	StripIndexFormat wgpu.IndexFormat
	FrontFace        wgpu.FrontFace
	CullMode         wgpu.CullMode

	ColorFormat wgpu.TextureFormat
	// Blend is nil when blending is disabled.
	Blend     *wgpu.BlendState
	WriteMask wgpu.ColorWriteMask

	// DepthFormat is undefined when the pipeline has no depth attachment.
	DepthFormat         wgpu.TextureFormat
	DepthTest           bool
	DepthWrite          bool
	DepthBias           int32
	DepthBiasSlopeScale float32

	SampleCount uint32
}

// DefaultBlendState is the premultiplied-style alpha blend applied by WithBlendEnabled.
var DefaultBlendState = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// NewState builds a State from the engine defaults: triangle list, counter-clockwise
// front faces, no culling, depth tested and written into Depth24Plus, all color channels
// written, no blending and one sample. Options override the defaults.
//
// Parameters:
//   - opts: a variadic list of StateBuilderOption functions to configure the state
//
// Returns:
//   - State: the configured state
func NewState(opts ...StateBuilderOption) State {
	s := State{
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Topology:      wgpu.PrimitiveTopologyTriangleList,
		FrontFace:     wgpu.FrontFaceCCW,
		CullMode:      wgpu.CullModeNone,
		ColorFormat:   wgpu.TextureFormatBGRA8UnormSrgb,
		WriteMask:     wgpu.ColorWriteMaskAll,
		DepthFormat:   wgpu.TextureFormatDepth24Plus,
		DepthTest:     true,
		DepthWrite:    true,
		SampleCount:   1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Key canonicalizes the state.
//
// Returns:
//   - descriptor_key.Key: the pipeline cache key
//   - error: a canonicalization error
func (s State) Key() (descriptor_key.Key, error) {
	return descriptor_key.Canonicalize(s)
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	key          descriptor_key.Key
	state        State
	handle       *wgpu.RenderPipeline
	layout       *wgpu.PipelineLayout
	groupLayouts []*wgpu.BindGroupLayout
	groupKeys    []descriptor_key.Key
}

// Pipeline is a created render pipeline together with the layouts it was built from.
// Pipelines are owned by the shared arena and never mutated after creation.
type Pipeline interface {
	// Key returns the canonical key of the pipeline's State.
	//
	// Returns:
	//   - descriptor_key.Key: the key
	Key() descriptor_key.Key

	// State returns the state the pipeline was created from.
	//
	// Returns:
	//   - State: the state
	State() State

	// Handle returns the GPU render pipeline.
	//
	// Returns:
	//   - *wgpu.RenderPipeline: the pipeline
	Handle() *wgpu.RenderPipeline

	// Layout returns the pipeline layout.
	//
	// Returns:
	//   - *wgpu.PipelineLayout: the layout
	Layout() *wgpu.PipelineLayout

	// GroupLayout returns the bind group layout of a group index, nil if out of range.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout
	GroupLayout(group int) *wgpu.BindGroupLayout

	// GroupLayoutKeys returns the layout cache keys of every group in index order.
	//
	// Returns:
	//   - []descriptor_key.Key: the keys
	GroupLayoutKeys() []descriptor_key.Key
}

var _ Pipeline = &pipeline{}

// NewPipeline wraps created GPU objects.
//
// Parameters:
//   - key: the canonical state key
//   - state: the state the objects were created from
//   - handle: the render pipeline
//   - layout: the pipeline layout
//   - groupLayouts: the bind group layouts by group index
//   - groupKeys: the layout cache keys by group index
//
// Returns:
//   - Pipeline: the pipeline
func NewPipeline(key descriptor_key.Key, state State, handle *wgpu.RenderPipeline, layout *wgpu.PipelineLayout, groupLayouts []*wgpu.BindGroupLayout, groupKeys []descriptor_key.Key) Pipeline {
	return &pipeline{
		key:          key,
		state:        state,
		handle:       handle,
		layout:       layout,
		groupLayouts: groupLayouts,
		groupKeys:    groupKeys,
	}
}

func (p *pipeline) Key() descriptor_key.Key {
	return p.key
}

func (p *pipeline) State() State {
	return p.state
}

func (p *pipeline) Handle() *wgpu.RenderPipeline {
	return p.handle
}

func (p *pipeline) Layout() *wgpu.PipelineLayout {
	return p.layout
}

func (p *pipeline) GroupLayout(group int) *wgpu.BindGroupLayout {
	if group < 0 || group >= len(p.groupLayouts) {
		return nil
	}
	return p.groupLayouts[group]
}

func (p *pipeline) GroupLayoutKeys() []descriptor_key.Key {
	return p.groupKeys
}
