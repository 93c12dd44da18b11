package scene

import (
	"math"
	"strconv"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
)

// Grid lays out n nodes sharing m on a square grid in the XZ plane, centered on the
// origin. The nodes hang off a single group node, so they batch into one draw per
// primitive of m.
//
// Parameters:
//   - n: the number of nodes
//   - spacing: distance between neighbouring nodes
//   - m: the mesh every node shows
//
// Returns:
//   - node.Node: the group node
func Grid(n int, spacing float32, m *mesh.Mesh) node.Node {
	group := node.NewNode(node.WithName("grid"))
	if n <= 0 {
		return group
	}
	side := int(math.Ceil(math.Sqrt(float64(n))))
	offset := float32(side-1) * spacing / 2
	for i := range n {
		x := float32(i%side)*spacing - offset
		z := float32(i/side)*spacing - offset
		group.AddChild(node.NewNode(
			node.WithName("grid_"+strconv.Itoa(i)),
			node.WithMesh(m),
			node.WithTranslation(x, 0, z),
		))
	}
	return group
}
