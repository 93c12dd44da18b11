package batcher

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
)

// Range is a contiguous run of instances in the instance buffer.
type Range struct {
	First uint32
	Count uint32
}

// End returns the index one past the last instance.
func (r Range) End() uint32 {
	return r.First + r.Count
}

// Group is every node drawing one primitive. Its instances occupy Range, in Nodes order.
type Group struct {
	Key       descriptor_key.Key
	Primitive *mesh.Primitive
	Layout    *mesh.Layout
	Nodes     []node.Node
	Range     Range
}

// Fault is a primitive the batcher could not batch.
type Fault struct {
	Node      node.Node
	Mesh      string
	Primitive int
	Err       error
	// Fatal faults are primitives that can never be drawn, as opposed to formats the
	// renderer does not support.
	Fatal bool
}

func (f Fault) Error() string {
	return fmt.Sprintf("node %q mesh %q primitive %d: %v", f.Node.Name(), f.Mesh, f.Primitive, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// Layout is the result of a build: groups in first-seen order with disjoint ranges
// covering [0, Total).
type Layout struct {
	Groups []*Group
	Faults []Fault
	Total  uint32

	index map[descriptor_key.Key]*Group
}

// Group returns the group of a key.
//
// Parameters:
//   - key: the group key
//
// Returns:
//   - *Group: the group
//   - bool: true if the key was batched
func (l *Layout) Group(key descriptor_key.Key) (*Group, bool) {
	g, ok := l.index[key]
	return g, ok
}

// Err joins the fatal faults of the build, or returns nil if there were none.
//
// Returns:
//   - error: the joined fatal faults
func (l *Layout) Err() error {
	var errs []error
	for _, f := range l.Faults {
		if f.Fatal {
			errs = append(errs, f)
		}
	}
	return errors.Join(errs...)
}
