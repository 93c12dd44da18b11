package material

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestMaterialIdentityIgnoresNameAndPixels(t *testing.T) {
	a := NewMaterial(WithName("a"), WithBaseColorTexture(&Texture{
		Source: "tex0",
		Image:  &common.TextureStagingData{Pixels: []byte{1, 2, 3, 4}, Width: 1, Height: 1},
	}))
	b := NewMaterial(WithName("b"), WithBaseColorTexture(&Texture{Source: "tex0"}))

	ka, err := a.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	kb, err := b.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if ka != kb {
		t.Fatalf("keys differ:\n%s\n%s", ka, kb)
	}
}

func TestMaterialIdentityDistinguishes(t *testing.T) {
	base := NewMaterial()
	tests := []struct {
		name string
		m    *Material
	}{
		{"texture", NewMaterial(WithBaseColorTexture(&Texture{Source: "tex1"}))},
		{"sampler", NewMaterial(WithBaseColorTexture(&Texture{Source: "", Sampler: common.SamplerStagingData{MagFilter: wgpu.FilterModeNearest}}))},
		{"factor", NewMaterial(WithBaseColor([4]float32{1, 0, 0, 1}))},
		{"alpha", NewMaterial(WithAlpha(AlphaMask, 0.3))},
		{"double sided", NewMaterial(WithDoubleSided(true))},
	}
	kb, _ := base.Key()
	seen := map[string]string{}
	for _, tt := range tests {
		k, err := tt.m.Key()
		if err != nil {
			t.Fatalf("%s: Key: %v", tt.name, err)
		}
		if k == kb {
			t.Errorf("%s: key equals default material", tt.name)
		}
		if other, ok := seen[k.String()]; ok {
			t.Errorf("%s: key equals %s", tt.name, other)
		}
		seen[k.String()] = tt.name
	}
}

func TestBuildFallbacks(t *testing.T) {
	b, err := NewMaterial().Build(BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(b.Slots) != 3 {
		t.Fatalf("have %d slots, want 3", len(b.Slots))
	}
	want := [][4]uint8{FallbackBaseColor, FallbackNormal, FallbackMetallicRoughness}
	for i, s := range b.Slots {
		if s.HasImage() {
			t.Errorf("slot %d: unexpected image", i)
		}
		st := s.Staging()
		if !bytes.Equal(st.Pixels, want[i][:]) {
			t.Errorf("slot %d: have %v, want %v", i, st.Pixels, want[i])
		}
		if s.Sampler() != (common.SamplerStagingData{}).WithDefaults() {
			t.Errorf("slot %d: sampler defaults not applied", i)
		}
	}
	if len(b.Uniform) != GPUMaterialParamsSize {
		t.Fatalf("uniform: have %d bytes, want %d", len(b.Uniform), GPUMaterialParamsSize)
	}
	if len(b.Entries) != 7 {
		t.Fatalf("entries: have %d, want 7", len(b.Entries))
	}
	if b.CullMode != wgpu.CullModeBack || b.Blend || !b.DepthWrite {
		t.Fatalf("unexpected pipeline hints: %+v", b)
	}
}

func TestBuildAlphaModes(t *testing.T) {
	mask, err := NewMaterial(WithAlpha(AlphaMask, 0)).Build(BuildOptions{VertexFlags: []string{"HAS_UV"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !mask.Context.Enabled("ALPHA_MASK") || !mask.Context.Enabled("HAS_UV") {
		t.Fatalf("flags: have %v", mask.Context.EnabledFlags())
	}
	want := make([]byte, 4)
	common.PutFloat32s(want, []float32{0.5})
	if !bytes.Equal(mask.Uniform[28:32], want) {
		t.Fatalf("default cutoff not applied: %v", mask.Uniform[28:32])
	}

	blend, err := NewMaterial(WithAlpha(AlphaBlend, 0), WithDoubleSided(true)).Build(BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !blend.Blend || blend.DepthWrite || blend.CullMode != wgpu.CullModeNone {
		t.Fatalf("blend hints: have blend=%v depthWrite=%v cull=%v", blend.Blend, blend.DepthWrite, blend.CullMode)
	}
	if blend.Context.Enabled("ALPHA_MASK") {
		t.Fatal("blend material must not enable ALPHA_MASK")
	}
	if len(blend.PipelineOptions()) != 3 {
		t.Fatalf("have %d pipeline options, want 3", len(blend.PipelineOptions()))
	}
}

func TestParseAlphaMode(t *testing.T) {
	tests := []struct {
		in   string
		want AlphaMode
		err  bool
	}{
		{"", AlphaOpaque, false},
		{"OPAQUE", AlphaOpaque, false},
		{"MASK", AlphaMask, false},
		{"BLEND", AlphaBlend, false},
		{"ADD", AlphaOpaque, true},
	}
	for _, tt := range tests {
		have, err := ParseAlphaMode(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("%q: err = %v, want err %v", tt.in, err, tt.err)
		}
		if have != tt.want {
			t.Fatalf("%q: have %v, want %v", tt.in, have, tt.want)
		}
		if !tt.err && tt.in != "" && have.String() != tt.in {
			t.Fatalf("String: have %q, want %q", have.String(), tt.in)
		}
	}
}

func TestGlobalsMarshal(t *testing.T) {
	g := GPUGlobals{ViewProj: common.IdentityMatrix(), LightDirection: [4]float32{0, -1, 0, 0}}
	buf := g.Marshal()
	if len(buf) != GPUGlobalsSize {
		t.Fatalf("have %d bytes, want %d", len(buf), GPUGlobalsSize)
	}
	want := make([]byte, 4)
	common.PutFloat32s(want, []float32{-1})
	if !bytes.Equal(buf[84:88], want) {
		t.Fatalf("light direction y: have %v", buf[84:88])
	}
	if GlobalsEntries()[0].Buffer.MinBindingSize != GPUGlobalsSize {
		t.Fatal("globals entry size mismatch")
	}
}

func TestLitVariantsValidate(t *testing.T) {
	pp := shader.NewPreProcessor()
	variants := [][]string{
		nil,
		{"HAS_NORMAL"},
		{"HAS_NORMAL", "HAS_UV"},
		{"HAS_NORMAL", "HAS_UV", "HAS_COLOR", "ALPHA_MASK"},
	}
	for _, flags := range variants {
		code, err := pp.Process(LitSource, shader.Context{}.With(flags...))
		if err != nil {
			t.Fatalf("%v: Process: %v", flags, err)
		}
		if strings.Contains(code, "#if") {
			t.Fatalf("%v: directives left in output", flags)
		}
		if err := shader.NagaValidator(LitSourceName, code); err != nil {
			t.Fatalf("%v: %v", flags, err)
		}
	}
}
