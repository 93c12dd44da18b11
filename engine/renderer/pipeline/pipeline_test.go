package pipeline

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

var testEntries = []wgpu.BindGroupLayoutEntry{
	{
		Binding:    0,
		Visibility: wgpu.ShaderStageVertex,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
	},
}

func mustKey(t *testing.T, s State) string {
	t.Helper()
	k, err := s.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	return k.String()
}

func TestStateKeyIgnoresOptionOrderAndLabel(t *testing.T) {
	a := NewState(
		WithLabel("a"),
		WithVertexModule("vs-key", "vs_main"),
		WithCullMode(wgpu.CullModeBack),
		WithBindGroup(0, testEntries...),
	)
	b := NewState(
		WithBindGroup(0, testEntries...),
		WithCullMode(wgpu.CullModeBack),
		WithVertexModule("vs-key", "vs_main"),
		WithLabel("b"),
	)
	if mustKey(t, a) != mustKey(t, b) {
		t.Fatalf("equivalent states produced different keys")
	}
}

func TestStateKeyDistinguishesFields(t *testing.T) {
	base := NewState(WithVertexModule("vs", "vs_main"), WithFragmentModule("fs", "fs_main"))
	variants := map[string]State{
		"cull":     NewState(WithVertexModule("vs", "vs_main"), WithFragmentModule("fs", "fs_main"), WithCullMode(wgpu.CullModeBack)),
		"blend":    NewState(WithVertexModule("vs", "vs_main"), WithFragmentModule("fs", "fs_main"), WithBlendEnabled(true)),
		"samples":  NewState(WithVertexModule("vs", "vs_main"), WithFragmentModule("fs", "fs_main"), WithSampleCount(4)),
		"module":   NewState(WithVertexModule("vs2", "vs_main"), WithFragmentModule("fs", "fs_main")),
		"group":    NewState(WithVertexModule("vs", "vs_main"), WithFragmentModule("fs", "fs_main"), WithBindGroup(1, testEntries...)),
		"no depth": NewState(WithVertexModule("vs", "vs_main"), WithFragmentModule("fs", "fs_main"), WithDepthFormat(wgpu.TextureFormatUndefined)),
	}
	seen := map[string]string{mustKey(t, base): "base"}
	for name, s := range variants {
		k := mustKey(t, s)
		if other, ok := seen[k]; ok {
			t.Fatalf("%s and %s share a key", name, other)
		}
		seen[k] = name
	}
}

func TestBlendToggle(t *testing.T) {
	s := NewState(WithBlendEnabled(true), WithBlendEnabled(false))
	if s.Blend != nil {
		t.Fatalf("blend left enabled")
	}
	s = NewState(WithBlendEnabled(true))
	if s.Blend == nil || *s.Blend != DefaultBlendState {
		t.Fatalf("blend = %+v, want default", s.Blend)
	}
}

func TestDescriptor(t *testing.T) {
	s := NewState(
		WithLabel("lit"),
		WithDepthTestEnabled(false),
		WithTopology(wgpu.PrimitiveTopologyTriangleStrip, wgpu.IndexFormatUint16),
		WithSampleCount(4),
		WithBlendEnabled(true),
	)
	d := Descriptor(s, nil, nil, nil)
	if d.Label != "lit" {
		t.Fatalf("Label = %q", d.Label)
	}
	if d.DepthStencil == nil || d.DepthStencil.DepthCompare != wgpu.CompareFunctionAlways {
		t.Fatalf("depth test disabled should compare Always")
	}
	if d.Primitive.StripIndexFormat != wgpu.IndexFormatUint16 {
		t.Fatalf("StripIndexFormat = %v", d.Primitive.StripIndexFormat)
	}
	if d.Multisample.Count != 4 || d.Multisample.Mask != 0xFFFFFFFF {
		t.Fatalf("Multisample = %+v", d.Multisample)
	}
	if d.Fragment.Targets[0].Blend == nil {
		t.Fatalf("blend missing from color target")
	}

	list := NewState(WithTopology(wgpu.PrimitiveTopologyTriangleList, wgpu.IndexFormatUint16), WithDepthFormat(wgpu.TextureFormatUndefined))
	d = Descriptor(list, nil, nil, nil)
	if d.Primitive.StripIndexFormat != wgpu.IndexFormatUndefined {
		t.Fatalf("list topology carried a strip index format")
	}
	if d.DepthStencil != nil {
		t.Fatalf("undefined depth format kept a depth stencil state")
	}
	if d.DepthStencil == nil && d.Fragment.Targets[0].Blend != nil {
		t.Fatalf("blend set without WithBlendEnabled")
	}
}
