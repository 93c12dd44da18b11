package batcher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu/gputest"
)

func instanceFloat(data []byte, instance, index int) float32 {
	at := instance*mesh.InstanceStride + index*4
	return math.Float32frombits(binary.LittleEndian.Uint32(data[at : at+4]))
}

// grid builds a root with n children alternating between two shared meshes.
func grid(n int) (node.Node, []node.Node) {
	a, b := mesh.Cube(1, nil), mesh.Cube(2, nil)
	root := node.NewNode(node.WithName("root"))
	var children []node.Node
	for i := range n {
		m := a
		if i%2 == 1 {
			m = b
		}
		child := node.NewNode(node.WithName(fmt.Sprintf("n%d", i)), node.WithMesh(m), node.WithTranslation(float32(i), 0, 0))
		root.AddChild(child)
		children = append(children, child)
	}
	return root, children
}

func TestBuildRangesAreDisjointAndCover(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewGeometryBatcher(dev)
	defer b.Release()

	root, _ := grid(5)
	buf, layout, err := b.Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(layout.Groups) != 2 || layout.Total != 5 || buf.Count != 5 {
		t.Fatalf("have %d groups, total %d, count %d", len(layout.Groups), layout.Total, buf.Count)
	}
	var next uint32
	for _, g := range layout.Groups {
		if g.Range.First != next {
			t.Fatalf("group %s starts at %d, want %d", g.Key.Short(), g.Range.First, next)
		}
		if int(g.Range.Count) != len(g.Nodes) {
			t.Fatalf("group %s count %d, %d nodes", g.Key.Short(), g.Range.Count, len(g.Nodes))
		}
		if found, ok := layout.Group(g.Key); !ok || found != g {
			t.Fatalf("lookup of %s failed", g.Key.Short())
		}
		next = g.Range.End()
	}
	if next != layout.Total {
		t.Fatalf("ranges end at %d, total %d", next, layout.Total)
	}
	if first := layout.Groups[0]; first.Nodes[0].Name() != "n0" || first.Nodes[2].Name() != "n4" {
		t.Fatalf("first group order: %s, %s", first.Nodes[0].Name(), first.Nodes[2].Name())
	}

	// n2 is the second instance of the first group; column 3 holds its translation.
	if x := instanceFloat(buf.Data, 1, 12); x != 2 {
		t.Fatalf("instance 1 translation x = %v, want 2", x)
	}
	desc, ok := dev.BufferDescriptor(buf.Buffer)
	if !ok || desc.Size != uint64(5*mesh.InstanceStride) {
		t.Fatalf("instance buffer descriptor: %+v", desc)
	}
}

func TestRebuildFreesPreviousBuffer(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewGeometryBatcher(dev)
	defer b.Release()

	root, _ := grid(2)
	first, _, err := b.Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, _, err := b.Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first.Buffer == second.Buffer {
		t.Fatal("rebuild reused the instance buffer")
	}
	if dev.Freed() != 1 {
		t.Fatalf("freed %d, want 1", dev.Freed())
	}
}

func TestUpdateBuffersIsIdempotent(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewGeometryBatcher(dev)
	defer b.Release()

	if err := b.UpdateBuffers(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("have %v, want ErrNotBuilt", err)
	}
	root, children := grid(4)
	buf, layout, err := b.Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	built := append([]byte(nil), buf.Data...)
	ranges := []Range{layout.Groups[0].Range, layout.Groups[1].Range}

	for range 2 {
		if err := b.UpdateBuffers(); err != nil {
			t.Fatalf("UpdateBuffers: %v", err)
		}
	}
	if string(built) != string(buf.Data) {
		t.Fatal("update without changes altered the instance data")
	}

	children[0].SetTranslation(10, 0, 0)
	if err := b.UpdateBuffers(); err != nil {
		t.Fatalf("UpdateBuffers: %v", err)
	}
	if x := instanceFloat(buf.Data, 0, 12); x != 10 {
		t.Fatalf("translation x = %v, want 10", x)
	}
	w, ok := dev.LastWrite(buf.Buffer)
	if !ok || instanceFloat(w.Data, 0, 12) != 10 {
		t.Fatal("update was not uploaded")
	}
	if layout.Groups[0].Range != ranges[0] || layout.Groups[1].Range != ranges[1] {
		t.Fatal("ranges moved during update")
	}
}

func TestBuildSkipsDisabledSubtrees(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewGeometryBatcher(dev)
	defer b.Release()

	root, children := grid(3)
	children[1].AddChild(node.NewNode(node.WithMesh(mesh.Cube(1, nil))))
	children[1].SetEnabled(false)

	_, layout, err := b.Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if layout.Total != 2 || len(layout.Groups) != 1 {
		t.Fatalf("have total %d in %d groups, want 2 in 1", layout.Total, len(layout.Groups))
	}
}

func TestBuildRecordsFaults(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewGeometryBatcher(dev)
	defer b.Release()

	good := mesh.Cube(1, nil)
	noPosition := &mesh.Mesh{Name: "broken", Primitives: []*mesh.Primitive{{
		Topology:   mesh.TopologyTriangles,
		Attributes: map[string]mesh.Accessor{},
	}}}
	points := mesh.Cube(1, nil)
	points.Primitives[0].Topology = mesh.Topology(42)

	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithName("good"), node.WithMesh(good)),
		node.NewNode(node.WithName("broken"), node.WithMesh(noPosition)),
		node.NewNode(node.WithName("odd"), node.WithMesh(points)),
	))
	_, layout, err := b.Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if layout.Total != 1 || len(layout.Faults) != 2 {
		t.Fatalf("have total %d, %d faults", layout.Total, len(layout.Faults))
	}
	if !layout.Faults[0].Fatal || !errors.Is(layout.Faults[0], mesh.ErrMissingPosition) {
		t.Fatalf("first fault: %+v", layout.Faults[0])
	}
	if layout.Faults[1].Fatal || !errors.Is(layout.Faults[1], mesh.ErrUnsupportedTopology) {
		t.Fatalf("second fault: %+v", layout.Faults[1])
	}
	if err := layout.Err(); !errors.Is(err, mesh.ErrMissingPosition) || errors.Is(err, mesh.ErrUnsupportedTopology) {
		t.Fatalf("Err: %v", err)
	}
}

func TestEmptySceneHasNoGPUBuffer(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewGeometryBatcher(dev)
	defer b.Release()

	buf, layout, err := b.Build(node.NewNode())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if buf.Buffer != nil || layout.Total != 0 || dev.Created(gputest.KindBuffer) != 0 {
		t.Fatalf("empty build allocated: %+v", buf)
	}
	if err := b.UpdateBuffers(); err != nil {
		t.Fatalf("UpdateBuffers: %v", err)
	}
}

func TestParallelPackMatchesSerial(t *testing.T) {
	root, _ := grid(257)

	serial := NewGeometryBatcher(gputest.NewDevice(), WithParallelThreshold(1_000_000))
	defer serial.Release()
	parallel := NewGeometryBatcher(gputest.NewDevice(), WithWorkers(4), WithParallelThreshold(16), WithQueueSize(8))
	defer parallel.Release()

	want, _, err := serial.Build(root)
	if err != nil {
		t.Fatalf("serial Build: %v", err)
	}
	have, _, err := parallel.Build(root)
	if err != nil {
		t.Fatalf("parallel Build: %v", err)
	}
	if string(want.Data) != string(have.Data) {
		t.Fatal("parallel packing differs from serial packing")
	}
	if err := parallel.UpdateBuffers(); err != nil {
		t.Fatalf("UpdateBuffers: %v", err)
	}
	if string(want.Data) != string(have.Data) {
		t.Fatal("parallel update differs from serial packing")
	}
}
