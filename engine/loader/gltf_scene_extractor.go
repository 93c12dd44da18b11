package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/model"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
)

// extractScene builds node templates for the document's default scene. Documents without
// scenes use every node that is not another node's child.
func extractScene(doc *gltfDocument) ([]*model.NodeTemplate, error) {
	var roots []int
	switch {
	case len(doc.Scenes) > 0:
		si := 0
		if doc.Scene != nil {
			si = *doc.Scene
		}
		if si < 0 || si >= len(doc.Scenes) {
			return nil, fmt.Errorf("%w: scene %d", ErrIndexOutOfRange, si)
		}
		roots = doc.Scenes[si].Nodes
	default:
		child := make(map[int]bool)
		for _, n := range doc.Nodes {
			for _, c := range n.Children {
				child[c] = true
			}
		}
		for i := range doc.Nodes {
			if !child[i] {
				roots = append(roots, i)
			}
		}
	}

	visiting := make(map[int]bool)
	out := make([]*model.NodeTemplate, 0, len(roots))
	for _, r := range roots {
		t, err := nodeTemplate(doc, r, visiting)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func nodeTemplate(doc *gltfDocument, index int, visiting map[int]bool) (*model.NodeTemplate, error) {
	if index < 0 || index >= len(doc.Nodes) {
		return nil, fmt.Errorf("%w: node %d", ErrIndexOutOfRange, index)
	}
	if visiting[index] {
		return nil, fmt.Errorf("loader: node %d is its own ancestor", index)
	}
	visiting[index] = true
	defer delete(visiting, index)

	gn := &doc.Nodes[index]
	t := &model.NodeTemplate{
		Name:      gn.Name,
		Mesh:      -1,
		Matrix:    gn.Matrix,
		Transform: node.IdentityTransform(),
	}
	if t.Name == "" {
		t.Name = fmt.Sprintf("node_%d", index)
	}
	if gn.Mesh != nil {
		if *gn.Mesh < 0 || *gn.Mesh >= len(doc.Meshes) {
			return nil, fmt.Errorf("node %q: %w: mesh %d", t.Name, ErrIndexOutOfRange, *gn.Mesh)
		}
		t.Mesh = *gn.Mesh
	}
	if gn.Translation != nil {
		t.Transform.Translation = *gn.Translation
	}
	if gn.Rotation != nil {
		t.Transform.Rotation = *gn.Rotation
	}
	if gn.Scale != nil {
		t.Transform.Scale = *gn.Scale
	}

	for _, c := range gn.Children {
		ct, err := nodeTemplate(doc, c, visiting)
		if err != nil {
			return nil, err
		}
		t.Children = append(t.Children, ct)
	}
	return t, nil
}
