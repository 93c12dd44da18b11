package gputest

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// Call is one recorded pass command.
type Call struct {
	Op   string
	Args []any
}

// String renders the call as op(arg, arg, ...).
func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return c.Op + "(" + strings.Join(parts, ", ") + ")"
}

// Pass records render pass commands. Handles are recorded by pointer so tests can
// compare them with the objects the caches returned.
type Pass struct {
	Calls []Call
}

// NewPass creates an empty recording pass.
func NewPass() *Pass {
	return &Pass{}
}

// Count returns how many calls of op were recorded.
func (p *Pass) Count(op string) int {
	n := 0
	for _, c := range p.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Ops returns the recorded operation names in order.
func (p *Pass) Ops() []string {
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Op
	}
	return out
}

// Reset clears the recording.
func (p *Pass) Reset() {
	p.Calls = p.Calls[:0]
}

func (p *Pass) record(op string, args ...any) {
	p.Calls = append(p.Calls, Call{Op: op, Args: args})
}

func (p *Pass) SetPipeline(pipeline *wgpu.RenderPipeline) {
	p.record("SetPipeline", pipeline)
}

func (p *Pass) SetBindGroup(groupIndex uint32, group *wgpu.BindGroup, dynamicOffsets []uint32) {
	p.record("SetBindGroup", groupIndex, group)
}

func (p *Pass) SetVertexBuffer(slot uint32, buffer *wgpu.Buffer, offset, size uint64) {
	p.record("SetVertexBuffer", slot, buffer, offset)
}

func (p *Pass) SetIndexBuffer(buffer *wgpu.Buffer, format wgpu.IndexFormat, offset, size uint64) {
	p.record("SetIndexBuffer", buffer, format, offset)
}

func (p *Pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.record("Draw", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *Pass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.record("DrawIndexed", indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}
