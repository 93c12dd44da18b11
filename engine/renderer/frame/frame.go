// Package frame replays a render order into a render pass, skipping every bind whose
// value is already set.
package frame

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/render_order"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// PassEncoder is the subset of *wgpu.RenderPassEncoder the executor records into.
type PassEncoder interface {
	SetPipeline(pipeline *wgpu.RenderPipeline)
	SetBindGroup(groupIndex uint32, group *wgpu.BindGroup, dynamicOffsets []uint32)
	SetVertexBuffer(slot uint32, buffer *wgpu.Buffer, offset, size uint64)
	SetIndexBuffer(buffer *wgpu.Buffer, format wgpu.IndexFormat, offset, size uint64)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}

var _ PassEncoder = (*wgpu.RenderPassEncoder)(nil)

// Stats counts the commands recorded for a frame.
type Stats struct {
	Pipelines     int
	BindGroups    int
	VertexBuffers int
	IndexBuffers  int
	Draws         int
	Instances     int
}

// Add returns the field-wise sum of two stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Pipelines:     s.Pipelines + o.Pipelines,
		BindGroups:    s.BindGroups + o.BindGroups,
		VertexBuffers: s.VertexBuffers + o.VertexBuffers,
		IndexBuffers:  s.IndexBuffers + o.IndexBuffers,
		Draws:         s.Draws + o.Draws,
		Instances:     s.Instances + o.Instances,
	}
}

type vertexState struct {
	buffer       *wgpu.Buffer
	offset, size uint64
}

type indexState struct {
	buffer       *wgpu.Buffer
	format       wgpu.IndexFormat
	offset, size uint64
}

// passState is what the executor knows to be bound in the current pass.
type passState struct {
	pipeline   *wgpu.RenderPipeline
	bindGroups map[uint32]*wgpu.BindGroup
	vertices   map[uint32]vertexState
	index      indexState
}

func newPassState() *passState {
	return &passState{
		bindGroups: make(map[uint32]*wgpu.BindGroup),
		vertices:   make(map[uint32]vertexState),
	}
}

type executor struct {
	mu     *sync.Mutex
	logger *log.Logger
	frames uint64
	totals Stats
}

// Executor records render orders into passes.
type Executor interface {
	// Draw records the order into the pass. Every pipeline is set once with the globals
	// group, every material group is set once per pipeline, and vertex and index buffers
	// are bound only when they differ from what is already bound in this pass. Each draw
	// covers its group's instance range.
	//
	// Parameters:
	//   - pass: the pass to record into; state is tracked from an empty pass
	//   - order: the order to replay
	//
	// Returns:
	//   - Stats: the commands recorded
	Draw(pass PassEncoder, order *render_order.RenderOrder) Stats

	// Totals returns the sum of every Draw since creation and the number of frames drawn.
	//
	// Returns:
	//   - Stats: the accumulated stats
	//   - uint64: the frame count
	Totals() (Stats, uint64)
}

var _ Executor = &executor{}

// NewExecutor creates an executor.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Executor: the executor
func NewExecutor(options ...ExecutorBuilderOption) Executor {
	e := &executor{
		mu:     &sync.Mutex{},
		logger: logger.For("frame"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *executor) Draw(pass PassEncoder, order *render_order.RenderOrder) Stats {
	var stats Stats
	if order == nil {
		return stats
	}
	st := newPassState()

	for _, pb := range order.Pipelines {
		if h := pb.Pipeline.Handle(); st.pipeline != h {
			pass.SetPipeline(h)
			st.pipeline = h
			clear(st.bindGroups)
			stats.Pipelines++
		}
		if pb.Globals != nil {
			e.bindGroup(pass, st, &stats, material.GlobalsGroup, pb.Globals.BindGroup())
		}

		for _, mb := range pb.Materials {
			e.bindGroup(pass, st, &stats, material.MaterialGroup, mb.BindGroup())

			for i := range mb.Draws {
				d := &mb.Draws[i]
				for _, v := range d.Vertices {
					e.vertexBuffer(pass, st, &stats, v)
				}
				e.vertexBuffer(pass, st, &stats, d.Instances)

				if d.Index != nil {
					want := indexState{buffer: d.Index.Buffer, format: d.Index.Format, offset: d.Index.Offset, size: d.Index.Size}
					if st.index != want {
						pass.SetIndexBuffer(want.buffer, want.format, want.offset, want.size)
						st.index = want
						stats.IndexBuffers++
					}
					pass.DrawIndexed(d.Count, d.Range.Count, 0, 0, d.Range.First)
				} else {
					pass.Draw(d.Count, d.Range.Count, 0, d.Range.First)
				}
				stats.Draws++
				stats.Instances += int(d.Range.Count)
			}
		}
	}

	e.mu.Lock()
	e.frames++
	e.totals = e.totals.Add(stats)
	first := e.frames == 1
	e.mu.Unlock()
	if first {
		e.logger.Debug("first frame recorded", "pipelines", stats.Pipelines, "draws", stats.Draws, "instances", stats.Instances, "deferred", len(order.Deferred))
	}
	return stats
}

func (e *executor) bindGroup(pass PassEncoder, st *passState, stats *Stats, group uint32, bg *wgpu.BindGroup) {
	if bg == nil || st.bindGroups[group] == bg {
		return
	}
	pass.SetBindGroup(group, bg, nil)
	st.bindGroups[group] = bg
	stats.BindGroups++
}

func (e *executor) vertexBuffer(pass PassEncoder, st *passState, stats *Stats, v render_order.VertexBuffer) {
	want := vertexState{buffer: v.Buffer, offset: v.Offset, size: v.Size}
	if have, ok := st.vertices[v.Slot]; ok && have == want {
		return
	}
	pass.SetVertexBuffer(v.Slot, v.Buffer, v.Offset, v.Size)
	st.vertices[v.Slot] = want
	stats.VertexBuffers++
}

func (e *executor) Totals() (Stats, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totals, e.frames
}
