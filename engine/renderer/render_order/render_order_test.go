package render_order

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

type fixture struct {
	dev     *gputest.Device
	shared  arena.Shared
	scene   arena.Scene
	batcher batcher.GeometryBatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.NewDevice()
	s := arena.NewShared(dev, arena.WithShaderOptions(
		shader.WithValidator(nil),
		shader.WithSources(material.Sources()),
	))
	f := &fixture{dev: dev, shared: s, scene: s.NewScene(), batcher: batcher.NewGeometryBatcher(dev)}
	t.Cleanup(func() {
		f.batcher.Release()
		f.shared.Teardown()
	})
	return f
}

func (f *fixture) build(t *testing.T, root node.Node, opts Options) (*batcher.Layout, *RenderOrder) {
	t.Helper()
	buf, layout, err := f.batcher.Build(root)
	if err != nil {
		t.Fatalf("batcher Build: %v", err)
	}
	opts.Instances = buf.Buffer
	order, err := NewBuilder(f.scene).Build(layout, opts)
	if err != nil {
		t.Fatalf("render order Build: %v", err)
	}
	return layout, order
}

func textured(source string) *material.Material {
	img := common.SolidColor([4]uint8{10, 20, 30, 255})
	return material.NewMaterial(
		material.WithName(source),
		material.WithBaseColorTexture(&material.Texture{Source: source, Image: &img}),
	)
}

func TestIdenticalMaterialsShareOneEntry(t *testing.T) {
	f := newFixture(t)

	// distinct pointers, identical values
	a := mesh.Cube(1, material.NewMaterial(material.WithName("a")))
	b := &mesh.Mesh{Primitives: []*mesh.Primitive{{
		Topology:   a.Primitives[0].Topology,
		Attributes: a.Primitives[0].Attributes,
		Indices:    a.Primitives[0].Indices,
		Material:   material.NewMaterial(material.WithName("b")),
	}}}
	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(a)),
		node.NewNode(node.WithMesh(b)),
	))
	layout, order := f.build(t, root, Options{})

	if len(layout.Groups) != 1 || layout.Total != 2 {
		t.Fatalf("have %d groups, %d instances", len(layout.Groups), layout.Total)
	}
	if len(order.Pipelines) != 1 || order.Materials() != 1 || order.Draws() != 1 {
		t.Fatalf("have %d pipelines, %d materials, %d draws", len(order.Pipelines), order.Materials(), order.Draws())
	}
	if n := f.dev.Created(gputest.KindRenderPipeline); n != 1 {
		t.Fatalf("created %d pipelines, want 1", n)
	}
}

func TestDrawEntryDescribesGeometry(t *testing.T) {
	f := newFixture(t)

	cube := mesh.Cube(1, material.NewMaterial())
	root := node.NewNode(node.WithMesh(cube))
	layout, order := f.build(t, root, Options{})

	pb := order.Pipelines[0]
	if _, ok := order.Pipeline(pb.Key); !ok {
		t.Fatal("pipeline index is missing its batch")
	}
	d := pb.Materials[0].Draws[0]
	if d.Group != layout.Groups[0].Key || d.Count != 36 || d.Range != (batcher.Range{First: 0, Count: 1}) {
		t.Fatalf("draw: %+v", d)
	}
	if len(d.Vertices) != 3 || d.Vertices[1].Offset != 12 || d.Vertices[2].Offset != 24 {
		t.Fatalf("vertex bindings: %+v", d.Vertices)
	}
	if d.Instances.Slot != 3 || d.Instances.Buffer == nil {
		t.Fatalf("instance binding: %+v", d.Instances)
	}
	if d.Index == nil || d.Index.Format != wgpu.IndexFormatUint16 || d.Index.Offset != 768 || d.Index.Size != 72 {
		t.Fatalf("index binding: %+v", d.Index)
	}
	// one upload serves every binding of the interleaved buffer
	if d.Index.Buffer != d.Vertices[0].Buffer || f.scene.Stats().GeometryBuffers != 1 {
		t.Fatal("geometry buffer was not shared between bindings")
	}

	state := pb.Pipeline.State()
	if state.CullMode != wgpu.CullModeBack || !state.DepthWrite || state.Blend != nil {
		t.Fatalf("opaque material state: cull %v depth write %v blend %v", state.CullMode, state.DepthWrite, state.Blend)
	}
	if len(state.VertexBuffers) != 4 || len(state.BindGroups) != 2 {
		t.Fatalf("state has %d vertex buffers and %d groups", len(state.VertexBuffers), len(state.BindGroups))
	}
}

func TestBlendMaterialGetsOwnPipeline(t *testing.T) {
	f := newFixture(t)

	opaque := mesh.Cube(1, material.NewMaterial())
	blended := mesh.Cube(1, material.NewMaterial(material.WithAlpha(material.AlphaBlend, 0)))
	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(opaque)),
		node.NewNode(node.WithMesh(blended)),
	))
	_, order := f.build(t, root, Options{})

	if len(order.Pipelines) != 2 {
		t.Fatalf("have %d pipelines, want 2", len(order.Pipelines))
	}
	if state := order.Pipelines[1].Pipeline.State(); state.Blend == nil || state.DepthWrite {
		t.Fatal("blend material did not disable depth writes")
	}
}

func TestMaskedMaterialCompilesVariant(t *testing.T) {
	f := newFixture(t)

	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(mesh.Cube(1, material.NewMaterial()))),
		node.NewNode(node.WithMesh(mesh.Cube(1, material.NewMaterial(material.WithAlpha(material.AlphaMask, 0.3))))),
	))
	_, order := f.build(t, root, Options{})

	if n := f.dev.Created(gputest.KindShaderModule); n != 2 {
		t.Fatalf("compiled %d modules, want 2", n)
	}
	if len(order.Pipelines) != 2 {
		t.Fatalf("have %d pipelines, want 2", len(order.Pipelines))
	}
}

func TestMissingMaterialIsDeferred(t *testing.T) {
	f := newFixture(t)

	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(mesh.Cube(1, nil))),
		node.NewNode(node.WithMesh(mesh.Cube(1, material.NewMaterial()))),
	))
	layout, order := f.build(t, root, Options{})
	if len(order.Deferred) != 1 || !errors.Is(order.Deferred[0].Reason, ErrNoMaterial) {
		t.Fatalf("deferred: %+v", order.Deferred)
	}
	if order.Deferred[0].Group != layout.Groups[0] || order.Draws() != 1 {
		t.Fatal("wrong group deferred")
	}

	_, order = f.build(t, root, Options{DefaultMaterial: material.NewMaterial()})
	if len(order.Deferred) != 0 || order.Draws() != 2 || order.Materials() != 1 {
		t.Fatalf("with default: %d deferred, %d draws, %d materials", len(order.Deferred), order.Draws(), order.Materials())
	}
}

func TestBuildRequiresInstanceBuffer(t *testing.T) {
	f := newFixture(t)

	_, layout, err := f.batcher.Build(node.NewNode(node.WithMesh(mesh.Cube(1, material.NewMaterial()))))
	if err != nil {
		t.Fatalf("batcher Build: %v", err)
	}
	if _, err := NewBuilder(f.scene).Build(layout, Options{}); err == nil {
		t.Fatal("expected an error without an instance buffer")
	}
}

func TestTexturedMaterialsDifferBySource(t *testing.T) {
	f := newFixture(t)

	cube := mesh.Cube(1, textured("a.png"))
	other := *cube.Primitives[0]
	other.Material = textured("b.png")
	same := *cube.Primitives[0]
	same.Material = textured("a.png")

	root := node.NewNode(node.WithChildren(
		node.NewNode(node.WithMesh(cube)),
		node.NewNode(node.WithMesh(&mesh.Mesh{Primitives: []*mesh.Primitive{&other}})),
		node.NewNode(node.WithMesh(&mesh.Mesh{Primitives: []*mesh.Primitive{&same}})),
	))
	_, order := f.build(t, root, Options{})

	if len(order.Pipelines) != 1 || order.Materials() != 2 {
		t.Fatalf("have %d pipelines and %d materials", len(order.Pipelines), order.Materials())
	}
	if n := f.scene.Stats().Materials; n != 2 {
		t.Fatalf("scene holds %d material groups, want 2", n)
	}
}
