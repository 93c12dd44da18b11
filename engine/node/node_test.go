package node

import (
	"math"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/common"
)

func approx(a, b [16]float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestWorldMatrixComposesParents(t *testing.T) {
	child := NewNode(WithName("child"), WithTranslation(0, 1, 0))
	root := NewNode(WithName("root"), WithTranslation(2, 0, 0), WithChildren(child))

	world := child.WorldMatrix()
	if world[12] != 2 || world[13] != 1 || world[14] != 0 {
		t.Fatalf("translation: have (%v, %v, %v), want (2, 1, 0)", world[12], world[13], world[14])
	}
	if child.Parent() != root {
		t.Fatal("parent not set")
	}

	root.SetScale(2, 2, 2)
	world = child.WorldMatrix()
	if world[13] != 2 || world[0] != 2 {
		t.Fatalf("scaled parent: have %v", world)
	}
}

func TestNormalMatrixOfUniformScale(t *testing.T) {
	n := NewNode()
	n.SetScale(2, 2, 2)
	n.SetTranslation(5, 6, 7)
	want := common.IdentityMatrix()
	for _, i := range []int{0, 5, 10} {
		want[i] = 0.5
	}
	if have := n.NormalMatrix(); !approx(have, want) {
		t.Fatalf("have %v, want %v", have, want)
	}
}

func TestSetMatrixOverridesTransform(t *testing.T) {
	m := common.IdentityMatrix()
	m[12] = 9
	n := NewNode(WithMatrix(m))
	if have := n.LocalMatrix(); have != m {
		t.Fatalf("have %v, want %v", have, m)
	}
	n.SetTranslation(1, 0, 0)
	if have := n.LocalMatrix(); have[12] != 1 {
		t.Fatalf("transform did not replace matrix: %v", have)
	}
}

func TestWalkOrderAndPruning(t *testing.T) {
	c1 := NewNode(WithName("c1"), WithChildren(NewNode(WithName("g1"))))
	c2 := NewNode(WithName("c2"))
	root := NewNode(WithName("root"), WithChildren(c1, c2))

	var names []string
	root.Walk(func(n Node) bool {
		names = append(names, n.Name())
		return true
	})
	want := []string{"root", "c1", "g1", "c2"}
	if len(names) != len(want) {
		t.Fatalf("have %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("have %v, want %v", names, want)
		}
	}

	names = names[:0]
	root.Walk(func(n Node) bool {
		names = append(names, n.Name())
		return n.Name() != "c1"
	})
	if len(names) != 3 {
		t.Fatalf("pruned walk: have %v", names)
	}
}

func TestReparent(t *testing.T) {
	a := NewNode()
	b := NewNode()
	c := NewNode()
	a.AddChild(c)
	b.AddChild(c)
	if len(a.Children()) != 0 || len(b.Children()) != 1 || c.Parent() != b {
		t.Fatal("child not moved")
	}
	if !b.RemoveChild(c) || c.Parent() != nil {
		t.Fatal("RemoveChild")
	}
	if b.RemoveChild(c) {
		t.Fatal("second RemoveChild reported success")
	}
}

func TestConcurrentReads(t *testing.T) {
	child := NewNode()
	root := NewNode(WithChildren(child))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					root.SetTranslation(float32(j), 0, 0)
				} else {
					_ = child.NormalMatrix()
				}
			}
		}(i)
	}
	wg.Wait()
	if child.WorldMatrix()[12] != 99 {
		t.Fatalf("have %v, want 99", child.WorldMatrix()[12])
	}
}
