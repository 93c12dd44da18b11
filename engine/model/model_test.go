package model

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
)

func TestInstantiateSharesMeshes(t *testing.T) {
	cube := mesh.Cube(1, nil)
	m := NewModel(
		WithName("crate"),
		WithMeshes(cube),
		WithRoots(&NodeTemplate{
			Name:      "body",
			Mesh:      0,
			Transform: node.IdentityTransform(),
			Children: []*NodeTemplate{
				{Name: "lid", Mesh: 0, Matrix: &[16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 2, 0, 1}},
				{Name: "empty", Mesh: -1, Transform: node.IdentityTransform()},
			},
		}),
	)
	if m.ID() == "" || m.PrimitiveCount() != 1 {
		t.Fatalf("id %q, %d primitives", m.ID(), m.PrimitiveCount())
	}

	a := m.Instantiate()
	b := m.Instantiate(node.WithTranslation(5, 0, 0))
	if a.Name() != "crate" || a.ID() == b.ID() {
		t.Fatal("instances should be distinct trees named after the model")
	}

	var meshes []*mesh.Mesh
	var names []string
	b.Walk(func(n node.Node) bool {
		names = append(names, n.Name())
		if n.Mesh() != nil {
			meshes = append(meshes, n.Mesh())
		}
		return true
	})
	if len(meshes) != 2 || meshes[0] != cube || meshes[1] != cube {
		t.Fatalf("have %d mesh references", len(meshes))
	}
	if want := []string{"crate", "body", "lid", "empty"}; len(names) != len(want) || names[2] != "lid" {
		t.Fatalf("walk order %v", names)
	}

	lid := b.Children()[0].Children()[0]
	world := lid.WorldMatrix()
	if world[12] != 5 || world[13] != 2 {
		t.Fatalf("lid world translation (%v, %v)", world[12], world[13])
	}
}
