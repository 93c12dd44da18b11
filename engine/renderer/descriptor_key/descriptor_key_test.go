package descriptor_key

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

type multisample struct {
	Count uint32
	Mask  uint32
	Alpha bool
}

type pipelineDesc struct {
	Label       string `key:"-"`
	Topology    string
	Multisample *multisample
	Targets     []string
	Defines     map[string]bool
	Constants   map[string]float64
	Blend       [4]float32 `key:"blend"`
}

type opaque struct {
	ref uintptr
}

type withHandle struct {
	Name   string
	Handle *opaque
}

func mustKey(t *testing.T, v any) Key {
	t.Helper()
	k, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("Canonicalize(%#v): %v", v, err)
	}
	return k
}

func TestMapInsertionOrderIsIgnored(t *testing.T) {
	a := map[string]any{}
	a["topology"] = "triangle-list"
	a["cull"] = "back"
	a["depth"] = map[string]any{"write": true, "compare": "less"}

	b := map[string]any{}
	b["depth"] = map[string]any{"compare": "less", "write": true}
	b["cull"] = "back"
	b["topology"] = "triangle-list"

	if ka, kb := mustKey(t, a), mustKey(t, b); ka != kb {
		t.Fatalf("keys differ:\n%s\n%s", ka, kb)
	}
}

func TestAbsentEqualsZero(t *testing.T) {
	for _, x := range [...]struct {
		name string
		a, b any
	}{
		{"nil pointer vs zero struct", pipelineDesc{Topology: "tl"}, pipelineDesc{Topology: "tl", Multisample: &multisample{}}},
		{"nil map vs false flags", pipelineDesc{}, pipelineDesc{Defines: map[string]bool{"USE_NORMAL": false}}},
		{"nil slice vs empty slice", pipelineDesc{}, pipelineDesc{Targets: []string{}}},
		{"missing map key vs nil value", map[string]any{"a": 1}, map[string]any{"a": 1, "b": nil}},
		{"negative zero", pipelineDesc{Constants: map[string]float64{"x": 0}}, pipelineDesc{Constants: map[string]float64{"x": math.Copysign(0, -1)}}},
		{"excluded label", pipelineDesc{Label: "first"}, pipelineDesc{Label: "second"}},
	} {
		if ka, kb := mustKey(t, x.a), mustKey(t, x.b); ka != kb {
			t.Fatalf("%s: keys differ:\n%s\n%s", x.name, ka, kb)
		}
	}
}

func TestDistinctDescriptorsDiffer(t *testing.T) {
	base := pipelineDesc{
		Topology:    "tl",
		Multisample: &multisample{Count: 4, Mask: math.MaxUint32},
		Targets:     []string{"bgra8unorm"},
		Defines:     map[string]bool{"USE_NORMAL": true},
		Constants:   map[string]float64{"cutoff": 0.5},
		Blend:       [4]float32{1, 0, 0, 1},
	}
	variants := []pipelineDesc{base}
	mutate := []func(*pipelineDesc){
		func(d *pipelineDesc) { d.Topology = "ts" },
		func(d *pipelineDesc) { d.Multisample = &multisample{Count: 1, Mask: math.MaxUint32} },
		func(d *pipelineDesc) { d.Multisample = &multisample{Count: 4, Mask: math.MaxUint32, Alpha: true} },
		func(d *pipelineDesc) { d.Targets = []string{"rgba8unorm"} },
		func(d *pipelineDesc) { d.Targets = []string{"bgra8unorm", "bgra8unorm"} },
		func(d *pipelineDesc) { d.Defines = map[string]bool{"USE_TEXCOORD": true} },
		func(d *pipelineDesc) { d.Constants = map[string]float64{"cutoff": 0.25} },
		func(d *pipelineDesc) { d.Blend = [4]float32{0, 1, 0, 1} },
	}
	for _, m := range mutate {
		d := base
		m(&d)
		variants = append(variants, d)
	}

	seen := map[Key]int{}
	for i, v := range variants {
		k := mustKey(t, v)
		if j, dup := seen[k]; dup {
			t.Fatalf("variants %d and %d share key %s", j, i, k)
		}
		seen[k] = i
	}
}

func TestSliceOrderMatters(t *testing.T) {
	a := mustKey(t, []int{1, 2})
	b := mustKey(t, []int{2, 1})
	if a == b {
		t.Fatal("reordered slice produced the same key")
	}
}

func TestStringsAreNotConfusedWithNumbers(t *testing.T) {
	a := mustKey(t, map[string]any{"v": "1"})
	b := mustKey(t, map[string]any{"v": 1})
	if a == b {
		t.Fatal("string and number produced the same key")
	}
}

func TestTypeNameIsPartOfKey(t *testing.T) {
	type a struct{ X int }
	type b struct{ X int }
	if mustKey(t, a{1}) == mustKey(t, b{1}) {
		t.Fatal("different descriptor types produced the same key")
	}
	if mustKey(t, a{1}) != mustKey(t, &a{1}) {
		t.Fatal("pointer and value of the same descriptor produced different keys")
	}
}

type left struct{ X int }
type right struct{ X int }

func TestInterfaceValuesCarryTheirType(t *testing.T) {
	tests := []struct {
		name string
		a, b any
	}{
		{"structs", map[string]any{"v": left{X: 1}}, map[string]any{"v": right{X: 1}}},
		{"integers", map[string]any{"v": int32(1)}, map[string]any{"v": uint8(1)}},
		{"float widths", map[string]any{"v": float32(0.5)}, map[string]any{"v": 0.5}},
		{"slice elements", []any{left{X: 1}}, []any{right{X: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := mustKey(t, tt.a), mustKey(t, tt.b)
			if a == b {
				t.Fatalf("different dynamic types produced the same key %s", a)
			}
		})
	}
	if mustKey(t, map[string]any{"v": left{X: 1}}) != mustKey(t, map[string]any{"v": left{X: 1}}) {
		t.Fatal("equal interface values produced different keys")
	}
}

type partlyHidden struct {
	Format string
	size   int
}

func TestMixedVisibilityStructIsRejected(t *testing.T) {
	_, err := Canonicalize(partlyHidden{Format: "rgba8", size: 4})
	if !errors.Is(err, ErrNonSerializable) {
		t.Fatalf("have %v\nwant %v", err, ErrNonSerializable)
	}
}

func TestWGPUBindGroupLayoutEntries(t *testing.T) {
	uniform := wgpu.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, MinBindingSize: 64},
	}
	sampler := wgpu.BindGroupLayoutEntry{
		Binding:    1,
		Visibility: wgpu.ShaderStageFragment,
		Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
	}
	a := mustKey(t, []wgpu.BindGroupLayoutEntry{uniform, sampler})
	b := mustKey(t, []wgpu.BindGroupLayoutEntry{uniform, sampler})
	if a != b {
		t.Fatalf("identical layouts produced different keys:\n%s\n%s", a, b)
	}
	uniform.Buffer.MinBindingSize = 80
	if c := mustKey(t, []wgpu.BindGroupLayoutEntry{uniform, sampler}); c == a {
		t.Fatal("changed MinBindingSize produced the same key")
	}
}

func TestNonSerializable(t *testing.T) {
	for _, x := range [...]struct {
		name string
		v    any
	}{
		{"chan", map[string]any{"c": make(chan int)}},
		{"func", map[string]any{"f": func() {}}},
		{"uintptr", map[string]any{"p": uintptr(1)}},
		{"complex", map[string]any{"c": complex(1, 2)}},
		{"opaque handle", withHandle{Name: "buf", Handle: &opaque{ref: 1}}},
	} {
		if _, err := Canonicalize(x.v); !errors.Is(err, ErrNonSerializable) {
			t.Fatalf("%s:\nhave %v\nwant %v", x.name, err, ErrNonSerializable)
		}
	}
}

func TestNilHandleIsAbsent(t *testing.T) {
	if _, err := Canonicalize(withHandle{Name: "buf"}); err != nil {
		t.Fatalf("nil handle: unexpected error %v", err)
	}
}

func TestNilDescriptor(t *testing.T) {
	if _, err := Canonicalize(nil); !errors.Is(err, ErrNilDescriptor) {
		t.Fatalf("Canonicalize(nil):\nhave %v\nwant %v", err, ErrNilDescriptor)
	}
}

type node struct {
	Next *node
}

func TestCycleFails(t *testing.T) {
	n := &node{}
	n.Next = n
	if _, err := Canonicalize(n); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("cyclic descriptor:\nhave %v\nwant %v", err, ErrTooDeep)
	}
}

func TestMustCanonicalizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustCanonicalize did not panic")
		}
	}()
	MustCanonicalize(map[string]any{"f": func() {}})
}

func TestConcurrentCanonicalize(t *testing.T) {
	d := pipelineDesc{Topology: "tl", Defines: map[string]bool{"A": true, "B": true}}
	want := mustKey(t, d)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if k, err := Canonicalize(d); err != nil || k != want {
				t.Errorf("concurrent Canonicalize:\nhave %s, %v\nwant %s", k, err, want)
			}
		}()
	}
	wg.Wait()
}

func TestHashIsStable(t *testing.T) {
	k := Key("pipeline|{}")
	if k.Hash() != k.Hash() || k.Short() == "" {
		t.Fatal("Hash/Short are not stable")
	}
}
