package material

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// AlphaMode controls how the alpha channel of the base color is interpreted.
type AlphaMode int

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// String returns the glTF spelling of the alpha mode.
func (a AlphaMode) String() string {
	switch a {
	case AlphaMask:
		return "MASK"
	case AlphaBlend:
		return "BLEND"
	default:
		return "OPAQUE"
	}
}

// ParseAlphaMode converts the glTF spelling of an alpha mode. An empty string is opaque.
//
// Parameters:
//   - s: the glTF alphaMode value
//
// Returns:
//   - AlphaMode: the parsed mode
//   - error: error if the value is not a known mode
func ParseAlphaMode(s string) (AlphaMode, error) {
	switch s {
	case "", "OPAQUE":
		return AlphaOpaque, nil
	case "MASK":
		return AlphaMask, nil
	case "BLEND":
		return AlphaBlend, nil
	}
	return AlphaOpaque, fmt.Errorf("material: unknown alpha mode %q", s)
}

// Texture references an image used by a material slot. Source identifies the image and is
// what material identity compares; the decoded pixels are carried alongside for upload.
type Texture struct {
	Source  string
	Image   *common.TextureStagingData `key:"-"`
	Sampler common.SamplerStagingData
}

// Material is a plain value descriptor of a surface. Two materials with equal fields are
// the same material regardless of where they were loaded from.
type Material struct {
	// Name is informational only and never part of material identity.
	Name string `key:"-"`

	BaseColorFactor [4]float32
	MetallicFactor  float32
	RoughnessFactor float32
	EmissiveFactor  [3]float32

	BaseColorTexture         *Texture
	NormalTexture            *Texture
	MetallicRoughnessTexture *Texture

	AlphaMode   AlphaMode
	AlphaCutoff float32
	DoubleSided bool
}

// NewMaterial creates a new Material configured with the provided options. The defaults are
// an opaque white dielectric with full roughness, matching glTF.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - *Material: a new Material
func NewMaterial(options ...MaterialBuilderOption) *Material {
	m := &Material{
		BaseColorFactor: [4]float32{1, 1, 1, 1},
		MetallicFactor:  0.0,
		RoughnessFactor: 1.0,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Key returns the canonical identity of the material.
//
// Returns:
//   - descriptor_key.Key: the canonical key
//   - error: error if the material cannot be canonicalized
func (m *Material) Key() (descriptor_key.Key, error) {
	return descriptor_key.Canonicalize(m)
}

// Fallback colors used for texture slots a material leaves empty.
var (
	FallbackBaseColor         = [4]uint8{255, 255, 255, 255}
	FallbackNormal            = [4]uint8{128, 128, 255, 255}
	FallbackMetallicRoughness = [4]uint8{0, 255, 0, 255}
)

// BuildOptions carries what the geometry contributes to a material build.
type BuildOptions struct {
	// VertexFlags are the shader flags describing the bound vertex attributes.
	VertexFlags []string
}

// TextureSlot is one texture and sampler pair of the material group.
type TextureSlot struct {
	TextureBinding uint32
	SamplerBinding uint32
	// Texture is nil when the slot uses Fallback.
	Texture  *Texture
	Fallback [4]uint8
}

// HasImage reports whether the slot carries its own pixels.
func (s TextureSlot) HasImage() bool {
	return s.Texture != nil && s.Texture.Image != nil
}

// Staging returns the pixels to upload for the slot.
func (s TextureSlot) Staging() common.TextureStagingData {
	if s.HasImage() {
		return *s.Texture.Image
	}
	return common.SolidColor(s.Fallback)
}

// Sampler returns the sampler configuration of the slot with defaults applied.
func (s TextureSlot) Sampler() common.SamplerStagingData {
	if s.Texture != nil {
		return s.Texture.Sampler.WithDefaults()
	}
	return common.SamplerStagingData{}.WithDefaults()
}

// Build is the value data a material contributes to a draw: its shader variant, the layout
// of its bind group and the contents of that group.
type Build struct {
	Key     descriptor_key.Key
	Source  string
	Context shader.Context
	Entries []wgpu.BindGroupLayoutEntry
	Slots   []TextureSlot
	Uniform []byte

	Blend      bool
	DepthWrite bool
	CullMode   wgpu.CullMode
}

// PipelineOptions returns the pipeline state the material imposes.
//
// Returns:
//   - []pipeline.StateBuilderOption: the options to apply after the defaults
func (b *Build) PipelineOptions() []pipeline.StateBuilderOption {
	return []pipeline.StateBuilderOption{
		pipeline.WithBlendEnabled(b.Blend),
		pipeline.WithDepthWriteEnabled(b.DepthWrite),
		pipeline.WithCullMode(b.CullMode),
	}
}

// Build resolves the material against the geometry it is drawn with.
//
// Parameters:
//   - opts: the geometry side of the build
//
// Returns:
//   - *Build: the shader variant, layout and contents of the material group
//   - error: error if the material cannot be canonicalized
func (m *Material) Build(opts BuildOptions) (*Build, error) {
	key, err := m.Key()
	if err != nil {
		return nil, fmt.Errorf("material %q: %w", m.Name, err)
	}

	ctx := shader.Context{}.With(opts.VertexFlags...)
	if m.AlphaMode == AlphaMask {
		ctx = ctx.With("ALPHA_MASK")
	}

	params := GPUMaterialParams{
		BaseColor:   m.BaseColorFactor,
		Emissive:    m.EmissiveFactor,
		AlphaCutoff: m.AlphaCutoff,
		Metallic:    m.MetallicFactor,
		Roughness:   m.RoughnessFactor,
	}
	if m.AlphaMode == AlphaMask && m.AlphaCutoff == 0 {
		params.AlphaCutoff = 0.5
	}

	b := &Build{
		Key:     key,
		Source:  LitSourceName,
		Context: ctx,
		Entries: Entries(),
		Slots: []TextureSlot{
			{TextureBinding: BindingBaseColorTexture, SamplerBinding: BindingBaseColorSampler, Texture: m.BaseColorTexture, Fallback: FallbackBaseColor},
			{TextureBinding: BindingNormalTexture, SamplerBinding: BindingNormalSampler, Texture: m.NormalTexture, Fallback: FallbackNormal},
			{TextureBinding: BindingMetallicRoughnessTexture, SamplerBinding: BindingMetallicRoughnessSampler, Texture: m.MetallicRoughnessTexture, Fallback: FallbackMetallicRoughness},
		},
		Uniform:    params.Marshal(),
		Blend:      m.AlphaMode == AlphaBlend,
		DepthWrite: m.AlphaMode != AlphaBlend,
		CullMode:   wgpu.CullModeBack,
	}
	if m.DoubleSided {
		b.CullMode = wgpu.CullModeNone
	}
	return b, nil
}
