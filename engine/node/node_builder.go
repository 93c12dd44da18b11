package node

import "github.com/Carmen-Shannon/oxy-instancer/engine/mesh"

// NodeBuilderOption is a function that configures a node during construction.
type NodeBuilderOption func(*node)

// WithName is an option builder that sets the display name of the node.
//
// Parameters:
//   - name: the node name
//
// Returns:
//   - NodeBuilderOption: a function that applies the name option to a node
func WithName(name string) NodeBuilderOption {
	return func(n *node) {
		n.name = name
	}
}

// WithMesh is an option builder that sets the mesh drawn at the node.
//
// Parameters:
//   - m: the mesh
//
// Returns:
//   - NodeBuilderOption: a function that applies the mesh option to a node
func WithMesh(m *mesh.Mesh) NodeBuilderOption {
	return func(n *node) {
		n.mesh = m
	}
}

// WithTransform is an option builder that sets the initial local transform.
//
// Parameters:
//   - t: the local transform
//
// Returns:
//   - NodeBuilderOption: a function that applies the transform option to a node
func WithTransform(t Transform) NodeBuilderOption {
	return func(n *node) {
		n.transform = t
	}
}

// WithTranslation is an option builder that sets the initial translation.
//
// Parameters:
//   - x, y, z: the translation
//
// Returns:
//   - NodeBuilderOption: a function that applies the translation option to a node
func WithTranslation(x, y, z float32) NodeBuilderOption {
	return func(n *node) {
		n.transform.Translation = [3]float32{x, y, z}
	}
}

// WithMatrix is an option builder that sets an explicit local matrix.
//
// Parameters:
//   - m: the column-major local matrix
//
// Returns:
//   - NodeBuilderOption: a function that applies the matrix option to a node
func WithMatrix(m [16]float32) NodeBuilderOption {
	return func(n *node) {
		n.matrix = &m
	}
}

// WithChildren is an option builder that attaches children to the node.
//
// Parameters:
//   - children: the nodes to attach, in order
//
// Returns:
//   - NodeBuilderOption: a function that applies the children option to a node
func WithChildren(children ...Node) NodeBuilderOption {
	return func(n *node) {
		for _, child := range children {
			c, ok := child.(*node)
			if !ok || c == n {
				continue
			}
			if old := c.Parent(); old != nil {
				old.RemoveChild(c)
			}
			c.mu.Lock()
			c.parent = n
			c.mu.Unlock()
			n.children = append(n.children, c)
		}
	}
}
