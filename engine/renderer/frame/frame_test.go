package frame

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/render_order"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
)

type world struct {
	dev     *gputest.Device
	scene   arena.Scene
	batcher batcher.GeometryBatcher
	builder render_order.Builder
}

func newWorld(t *testing.T) *world {
	t.Helper()
	dev := gputest.NewDevice()
	shared := arena.NewShared(dev, arena.WithShaderOptions(
		shader.WithValidator(nil),
		shader.WithSources(material.Sources()),
	))
	sc := shared.NewScene(arena.WithLabel("test"))
	w := &world{dev: dev, scene: sc, batcher: batcher.NewGeometryBatcher(dev), builder: render_order.NewBuilder(sc)}
	t.Cleanup(func() {
		w.batcher.Release()
		shared.Teardown()
	})
	return w
}

func (w *world) build(t *testing.T, root node.Node) (*batcher.InstanceBuffer, *batcher.Layout, *render_order.RenderOrder) {
	t.Helper()
	buf, layout, err := w.batcher.Build(root)
	if err != nil {
		t.Fatalf("batcher Build: %v", err)
	}
	order, err := w.builder.Build(layout, render_order.Options{Instances: buf.Buffer})
	if err != nil {
		t.Fatalf("render order Build: %v", err)
	}
	return buf, layout, order
}

func checkDraw(t *testing.T, call gputest.Call, count, instances, first uint32) {
	t.Helper()
	if call.Op != "DrawIndexed" {
		t.Fatalf("have %s, want DrawIndexed", call.Op)
	}
	if call.Args[0] != count || call.Args[1] != instances || call.Args[4] != first {
		t.Fatalf("DrawIndexed%v, want count %d instances %d first %d", call.Args, count, instances, first)
	}
}

func lastDraws(p *gputest.Pass) []gputest.Call {
	var out []gputest.Call
	for _, c := range p.Calls {
		if c.Op == "Draw" || c.Op == "DrawIndexed" {
			out = append(out, c)
		}
	}
	return out
}

// Three nodes sharing one mesh and material draw as one instanced call.
func TestSharedMeshDrawsOnce(t *testing.T) {
	w := newWorld(t)
	cube := mesh.Cube(1, material.NewMaterial())
	root := node.NewNode()
	for i := range 3 {
		root.AddChild(node.NewNode(node.WithMesh(cube), node.WithTranslation(float32(i), 0, 0)))
	}
	_, layout, order := w.build(t, root)

	if len(layout.Groups) != 1 || layout.Groups[0].Range != (batcher.Range{First: 0, Count: 3}) {
		t.Fatalf("layout: %+v", layout.Groups)
	}
	if len(order.Pipelines) != 1 || order.Materials() != 1 || order.Draws() != 1 {
		t.Fatalf("have %d pipelines, %d materials, %d draws", len(order.Pipelines), order.Materials(), order.Draws())
	}

	pass := gputest.NewPass()
	stats := NewExecutor().Draw(pass, order)
	if stats.Pipelines != 1 || stats.BindGroups != 2 || stats.Draws != 1 || stats.Instances != 3 {
		t.Fatalf("stats: %+v", stats)
	}
	draws := lastDraws(pass)
	if len(draws) != 1 {
		t.Fatalf("recorded %d draws, want 1", len(draws))
	}
	checkDraw(t, draws[0], 36, 3, 0)
}

// Materials differing only in texture source share the pipeline but not the bind group.
func TestTextureSourceSplitsMaterials(t *testing.T) {
	w := newWorld(t)
	img := common.SolidColor([4]uint8{200, 10, 10, 255})
	matA := material.NewMaterial(material.WithBaseColorTexture(&material.Texture{Source: "brick.png", Image: &img}))
	matB := material.NewMaterial(material.WithBaseColorTexture(&material.Texture{Source: "stone.png", Image: &img}))

	a := mesh.Cube(1, matA)
	prim := *a.Primitives[0]
	prim.Material = matB
	b := &mesh.Mesh{Primitives: []*mesh.Primitive{&prim}}

	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(a)),
		node.NewNode(node.WithMesh(b)),
	))
	_, _, order := w.build(t, root)

	if len(order.Pipelines) != 1 || order.Materials() != 2 {
		t.Fatalf("have %d pipelines and %d materials", len(order.Pipelines), order.Materials())
	}

	pass := gputest.NewPass()
	stats := NewExecutor().Draw(pass, order)
	if stats.Pipelines != 1 || stats.BindGroups != 3 {
		t.Fatalf("stats: %+v", stats)
	}
	// the shared geometry stays bound across the material switch
	if stats.VertexBuffers != 4 || stats.IndexBuffers != 1 {
		t.Fatalf("have %d vertex and %d index binds", stats.VertexBuffers, stats.IndexBuffers)
	}
	draws := lastDraws(pass)
	checkDraw(t, draws[0], 36, 1, 0)
	checkDraw(t, draws[1], 36, 1, 1)
}

// Adding a node triggers a rebuild into a fresh instance buffer.
func TestRebuildAfterAddingNode(t *testing.T) {
	w := newWorld(t)
	cube := mesh.Cube(1, material.NewMaterial())
	root := node.NewNode()
	for range 3 {
		root.AddChild(node.NewNode(node.WithMesh(cube)))
	}
	before, _, _ := w.build(t, root)

	root.AddChild(node.NewNode(node.WithMesh(cube)))
	after, layout, order := w.build(t, root)

	if layout.Groups[0].Range != (batcher.Range{First: 0, Count: 4}) {
		t.Fatalf("range after rebuild: %+v", layout.Groups[0].Range)
	}
	if before.Buffer == after.Buffer {
		t.Fatal("rebuild reused the instance buffer")
	}
	if desc, ok := w.dev.BufferDescriptor(after.Buffer); !ok || desc.Size != 4*mesh.InstanceStride {
		t.Fatalf("new instance buffer: %+v", desc)
	}

	pass := gputest.NewPass()
	NewExecutor().Draw(pass, order)
	draws := lastDraws(pass)
	checkDraw(t, draws[0], 36, 4, 0)
	for _, c := range pass.Calls {
		if c.Op == "SetVertexBuffer" && c.Args[1] == before.Buffer {
			t.Fatal("pass bound the freed instance buffer")
		}
	}
}

func TestPipelineChangeRebindsGroups(t *testing.T) {
	w := newWorld(t)
	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(mesh.Cube(1, material.NewMaterial()))),
		node.NewNode(node.WithMesh(mesh.Cube(1, material.NewMaterial(material.WithDoubleSided(true))))),
	))
	_, _, order := w.build(t, root)
	if len(order.Pipelines) != 2 {
		t.Fatalf("have %d pipelines, want 2", len(order.Pipelines))
	}

	pass := gputest.NewPass()
	exec := NewExecutor()
	stats := exec.Draw(pass, order)
	// globals and material for each pipeline
	if stats.Pipelines != 2 || stats.BindGroups != 4 || stats.Draws != 2 {
		t.Fatalf("stats: %+v", stats)
	}
	// each cube has its own buffer so every slot is rebound
	if stats.VertexBuffers != 7 || stats.IndexBuffers != 2 {
		t.Fatalf("have %d vertex and %d index binds", stats.VertexBuffers, stats.IndexBuffers)
	}

	pass.Reset()
	again := exec.Draw(pass, order)
	if again != stats {
		t.Fatalf("second frame: %+v, first %+v", again, stats)
	}
	totals, frames := exec.Totals()
	if frames != 2 || totals.Draws != 4 {
		t.Fatalf("totals %+v over %d frames", totals, frames)
	}
}

func TestDrawNilOrder(t *testing.T) {
	pass := gputest.NewPass()
	if stats := NewExecutor().Draw(pass, nil); stats != (Stats{}) || len(pass.Calls) != 0 {
		t.Fatalf("nil order recorded %v", pass.Ops())
	}
}
