package node

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/google/uuid"
)

// Transform is a decomposed local transform.
type Transform struct {
	// Translation is the position offset.
	Translation [3]float32

	// Rotation is the orientation as a quaternion (x, y, z, w).
	Rotation [4]float32

	// Scale is the scale factor along each axis.
	Scale [3]float32
}

// IdentityTransform returns the transform that leaves a node in place.
func IdentityTransform() Transform {
	return Transform{Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}
}

// Matrix composes the transform into a column-major matrix.
func (t Transform) Matrix() [16]float32 {
	var m [16]float32
	common.ComposeTRS(m[:], t.Translation, t.Rotation, t.Scale)
	return m
}

type node struct {
	id        string
	name      string
	enabled   atomic.Bool
	mu        *sync.Mutex
	parent    *node
	children  []*node
	mesh      *mesh.Mesh
	transform Transform
	matrix    *[16]float32
}

// Node defines the interface for an element of the scene graph. A node carries an optional
// mesh and a local transform; its world matrix is the product of its ancestors' local
// matrices and its own. All accessors are safe to call while other goroutines read the tree.
type Node interface {
	// ID returns the node's unique identifier.
	//
	// Returns:
	//   - string: the node ID
	ID() string

	// Name returns the node's display name.
	//
	// Returns:
	//   - string: the node name
	Name() string

	// Enabled returns whether the node and its subtree are drawn.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the node and its subtree are drawn.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// Parent returns the parent node, or nil for a root.
	//
	// Returns:
	//   - Node: the parent or nil
	Parent() Node

	// Children returns a snapshot of the node's children in insertion order.
	//
	// Returns:
	//   - []Node: the children
	Children() []Node

	// AddChild attaches child to this node, detaching it from any previous parent.
	//
	// Parameters:
	//   - child: the node to attach
	AddChild(child Node)

	// RemoveChild detaches child from this node.
	//
	// Parameters:
	//   - child: the node to detach
	//
	// Returns:
	//   - bool: true if child was a child of this node
	RemoveChild(child Node) bool

	// Mesh returns the mesh drawn at this node, or nil.
	//
	// Returns:
	//   - *mesh.Mesh: the mesh or nil
	Mesh() *mesh.Mesh

	// SetMesh sets the mesh drawn at this node.
	//
	// Parameters:
	//   - m: the mesh, or nil to draw nothing
	SetMesh(m *mesh.Mesh)

	// Transform returns the local transform.
	//
	// Returns:
	//   - Transform: the local transform
	Transform() Transform

	// SetTransform replaces the local transform. It clears any explicit matrix.
	//
	// Parameters:
	//   - t: the new local transform
	SetTransform(t Transform)

	// SetTranslation updates the translation of the local transform.
	//
	// Parameters:
	//   - x, y, z: the new translation
	SetTranslation(x, y, z float32)

	// SetRotation updates the rotation of the local transform.
	//
	// Parameters:
	//   - q: the rotation quaternion (x, y, z, w)
	SetRotation(q [4]float32)

	// SetScale updates the scale of the local transform.
	//
	// Parameters:
	//   - x, y, z: the new scale
	SetScale(x, y, z float32)

	// SetMatrix sets an explicit local matrix, used instead of the transform until the
	// transform is set again.
	//
	// Parameters:
	//   - m: the column-major local matrix
	SetMatrix(m [16]float32)

	// LocalMatrix returns the column-major local matrix.
	//
	// Returns:
	//   - [16]float32: the local matrix
	LocalMatrix() [16]float32

	// WorldMatrix returns the column-major world matrix.
	//
	// Returns:
	//   - [16]float32: the world matrix
	WorldMatrix() [16]float32

	// NormalMatrix returns the inverse transpose of the world matrix.
	//
	// Returns:
	//   - [16]float32: the normal matrix
	NormalMatrix() [16]float32

	// Walk visits the subtree depth-first, parent before children. Returning false from fn
	// skips the children of the visited node.
	//
	// Parameters:
	//   - fn: the visitor
	Walk(fn func(Node) bool)
}

var _ Node = &node{}

// NewNode creates a new Node configured with the provided options. It starts enabled
// with the identity transform.
//
// Parameters:
//   - options: variadic list of NodeBuilderOption functions to configure the node
//
// Returns:
//   - Node: the new node
func NewNode(options ...NodeBuilderOption) Node {
	n := &node{
		id:        uuid.NewString(),
		mu:        &sync.Mutex{},
		transform: IdentityTransform(),
	}
	n.enabled.Store(true)
	for _, opt := range options {
		opt(n)
	}
	return n
}

func (n *node) ID() string {
	return n.id
}

func (n *node) Name() string {
	return n.name
}

func (n *node) Enabled() bool {
	return n.enabled.Load()
}

func (n *node) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

func (n *node) Parent() Node {
	n.mu.Lock()
	p := n.parent
	n.mu.Unlock()
	if p == nil {
		return nil
	}
	return p
}

func (n *node) Children() []Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *node) AddChild(child Node) {
	c, ok := child.(*node)
	if !ok || c == n {
		return
	}
	if old := c.Parent(); old != nil {
		old.RemoveChild(c)
	}
	n.mu.Lock()
	n.children = append(n.children, c)
	n.mu.Unlock()
	c.mu.Lock()
	c.parent = n
	c.mu.Unlock()
}

func (n *node) RemoveChild(child Node) bool {
	c, ok := child.(*node)
	if !ok {
		return false
	}
	n.mu.Lock()
	found := false
	for i, existing := range n.children {
		if existing == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			found = true
			break
		}
	}
	n.mu.Unlock()
	if found {
		c.mu.Lock()
		if c.parent == n {
			c.parent = nil
		}
		c.mu.Unlock()
	}
	return found
}

func (n *node) Mesh() *mesh.Mesh {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mesh
}

func (n *node) SetMesh(m *mesh.Mesh) {
	n.mu.Lock()
	n.mesh = m
	n.mu.Unlock()
}

func (n *node) Transform() Transform {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transform
}

func (n *node) SetTransform(t Transform) {
	n.mu.Lock()
	n.transform = t
	n.matrix = nil
	n.mu.Unlock()
}

func (n *node) SetTranslation(x, y, z float32) {
	n.mu.Lock()
	n.transform.Translation = [3]float32{x, y, z}
	n.matrix = nil
	n.mu.Unlock()
}

func (n *node) SetRotation(q [4]float32) {
	n.mu.Lock()
	n.transform.Rotation = q
	n.matrix = nil
	n.mu.Unlock()
}

func (n *node) SetScale(x, y, z float32) {
	n.mu.Lock()
	n.transform.Scale = [3]float32{x, y, z}
	n.matrix = nil
	n.mu.Unlock()
}

func (n *node) SetMatrix(m [16]float32) {
	n.mu.Lock()
	n.matrix = &m
	n.mu.Unlock()
}

func (n *node) LocalMatrix() [16]float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.matrix != nil {
		return *n.matrix
	}
	return n.transform.Matrix()
}

func (n *node) WorldMatrix() [16]float32 {
	local := n.LocalMatrix()
	n.mu.Lock()
	p := n.parent
	n.mu.Unlock()
	if p == nil {
		return local
	}
	parent := p.WorldMatrix()
	var world [16]float32
	common.Mul4(world[:], parent[:], local[:])
	return world
}

func (n *node) NormalMatrix() [16]float32 {
	world := n.WorldMatrix()
	var out [16]float32
	common.NormalMatrix(out[:], world[:])
	return out
}

func (n *node) Walk(fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}
