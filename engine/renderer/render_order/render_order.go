// Package render_order turns a batcher layout into the nested draw order the frame
// executor replays: pipelines, then materials within a pipeline, then draws.
package render_order

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoMaterial is the reason a group is deferred when neither its primitive nor the
// build options provide a material.
var ErrNoMaterial = errors.New("render_order: primitive has no material and no default is set")

// VertexBuffer is a region of a GPU buffer bound to a vertex slot.
type VertexBuffer struct {
	Slot   uint32
	Buffer *wgpu.Buffer
	Offset uint64
	Size   uint64
}

// IndexBuffer is a region of a GPU buffer bound as the index buffer.
type IndexBuffer struct {
	Buffer *wgpu.Buffer
	Format wgpu.IndexFormat
	Offset uint64
	Size   uint64
}

// DrawEntry is one instanced draw of a batcher group.
type DrawEntry struct {
	Group    descriptor_key.Key
	Vertices []VertexBuffer
	// Instances is bound at the slot following the primitive's own vertex buffers.
	Instances VertexBuffer
	// Index is nil for non-indexed primitives.
	Index *IndexBuffer
	// Count is the index count, or the vertex count when Index is nil.
	Count uint32
	Range batcher.Range
}

// MaterialBatch is every draw sharing one material bind group within a pipeline.
type MaterialBatch struct {
	Key      descriptor_key.Key
	Name     string
	Provider bind_group_provider.BindGroupProvider
	Draws    []DrawEntry
}

// BindGroup returns the material bind group.
func (m *MaterialBatch) BindGroup() *wgpu.BindGroup {
	return m.Provider.BindGroup()
}

// PipelineBatch is every material drawn with one pipeline.
type PipelineBatch struct {
	Key       descriptor_key.Key
	Pipeline  pipeline.Pipeline
	Globals   bind_group_provider.BindGroupProvider
	Materials []*MaterialBatch

	index map[descriptor_key.Key]*MaterialBatch
}

// Material returns the batch of a material key.
func (p *PipelineBatch) Material(key descriptor_key.Key) (*MaterialBatch, bool) {
	m, ok := p.index[key]
	return m, ok
}

// Deferred is a group the order could not draw yet.
type Deferred struct {
	Group  *batcher.Group
	Reason error
}

// RenderOrder is the draw order of a layout. Pipelines and materials keep the order in
// which the groups first reached them.
type RenderOrder struct {
	Pipelines []*PipelineBatch
	Deferred  []Deferred

	index map[descriptor_key.Key]*PipelineBatch
}

// Pipeline returns the batch of a pipeline key.
func (o *RenderOrder) Pipeline(key descriptor_key.Key) (*PipelineBatch, bool) {
	p, ok := o.index[key]
	return p, ok
}

// Draws returns the number of draw entries across all pipelines.
func (o *RenderOrder) Draws() int {
	n := 0
	for _, p := range o.Pipelines {
		for _, m := range p.Materials {
			n += len(m.Draws)
		}
	}
	return n
}

// Materials returns the number of material batches across all pipelines.
func (o *RenderOrder) Materials() int {
	n := 0
	for _, p := range o.Pipelines {
		n += len(p.Materials)
	}
	return n
}

func newRenderOrder() *RenderOrder {
	return &RenderOrder{index: make(map[descriptor_key.Key]*PipelineBatch)}
}

func (o *RenderOrder) pipelineBatch(p pipeline.Pipeline, globals bind_group_provider.BindGroupProvider) *PipelineBatch {
	if pb, ok := o.index[p.Key()]; ok {
		return pb
	}
	pb := &PipelineBatch{
		Key:      p.Key(),
		Pipeline: p,
		Globals:  globals,
		index:    make(map[descriptor_key.Key]*MaterialBatch),
	}
	o.index[pb.Key] = pb
	o.Pipelines = append(o.Pipelines, pb)
	return pb
}

func (p *PipelineBatch) materialBatch(key descriptor_key.Key, name string, provider bind_group_provider.BindGroupProvider) *MaterialBatch {
	if mb, ok := p.index[key]; ok {
		return mb
	}
	mb := &MaterialBatch{Key: key, Name: name, Provider: provider}
	p.index[key] = mb
	p.Materials = append(p.Materials, mb)
	return mb
}
