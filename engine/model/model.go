package model

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/google/uuid"
)

// NodeTemplate describes one node of a model's hierarchy. Exactly one of Matrix and
// Transform applies: Matrix when it is non-nil.
type NodeTemplate struct {
	Name      string
	Mesh      int // index into the model's meshes, -1 for none
	Matrix    *[16]float32
	Transform node.Transform
	Children  []*NodeTemplate
}

// model is the implementation of the Model interface.
type model struct {
	id        string
	name      string
	meshes    []*mesh.Mesh
	materials []*material.Material
	roots     []*NodeTemplate
}

// Model defines the interface for an imported model. A model owns its meshes and materials
// and stamps out node trees that reference them, so every instance of a model draws
// through the same primitives and batches with the others.
type Model interface {
	// ID returns the identifier assigned when the model was imported.
	//
	// Returns:
	//   - string: the model ID
	ID() string

	// Name retrieves the model name.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Meshes returns the model's meshes in document order.
	//
	// Returns:
	//   - []*mesh.Mesh: the meshes
	Meshes() []*mesh.Mesh

	// Materials returns the model's materials in document order.
	//
	// Returns:
	//   - []*material.Material: the materials
	Materials() []*material.Material

	// Roots returns the top-level node templates.
	//
	// Returns:
	//   - []*NodeTemplate: the templates
	Roots() []*NodeTemplate

	// PrimitiveCount returns the number of primitives across all meshes.
	//
	// Returns:
	//   - int: the primitive count
	PrimitiveCount() int

	// Instantiate builds a new node tree from the templates under a root named after the
	// model. The tree shares the model's meshes.
	//
	// Parameters:
	//   - options: options applied to the new root node
	//
	// Returns:
	//   - node.Node: the root of the new tree
	Instantiate(options ...node.NodeBuilderOption) node.Node
}

var _ Model = &model{}

// NewModel creates a new Model with the given options.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: the configured model
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{id: uuid.NewString()}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *model) ID() string {
	return m.id
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Meshes() []*mesh.Mesh {
	return m.meshes
}

func (m *model) Materials() []*material.Material {
	return m.materials
}

func (m *model) Roots() []*NodeTemplate {
	return m.roots
}

func (m *model) PrimitiveCount() int {
	n := 0
	for _, me := range m.meshes {
		n += len(me.Primitives)
	}
	return n
}

func (m *model) Instantiate(options ...node.NodeBuilderOption) node.Node {
	root := node.NewNode(append([]node.NodeBuilderOption{node.WithName(m.name)}, options...)...)
	for _, t := range m.roots {
		root.AddChild(m.instantiate(t))
	}
	return root
}

func (m *model) instantiate(t *NodeTemplate) node.Node {
	opts := []node.NodeBuilderOption{node.WithName(t.Name)}
	if t.Matrix != nil {
		opts = append(opts, node.WithMatrix(*t.Matrix))
	} else {
		opts = append(opts, node.WithTransform(t.Transform))
	}
	if t.Mesh >= 0 && t.Mesh < len(m.meshes) {
		opts = append(opts, node.WithMesh(m.meshes[t.Mesh]))
	}
	n := node.NewNode(opts...)
	for _, c := range t.Children {
		n.AddChild(m.instantiate(c))
	}
	return n
}
