package material

// MaterialBuilderOption is a function that configures a material during construction.
type MaterialBuilderOption func(*Material)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *Material) {
		m.Name = name
	}
}

// WithBaseColor is an option builder that sets the albedo/diffuse RGBA factor of the material.
//
// Parameters:
//   - color: the base color as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *Material) {
		m.BaseColorFactor = color
	}
}

// WithMetallic is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metallic option to a material
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *Material) {
		m.MetallicFactor = metallic
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *Material) {
		m.RoughnessFactor = roughness
	}
}

// WithEmissive is an option builder that sets the emissive RGB factor of the material.
//
// Parameters:
//   - emissive: the emitted color
//
// Returns:
//   - MaterialBuilderOption: a function that applies the emissive option to a material
func WithEmissive(emissive [3]float32) MaterialBuilderOption {
	return func(m *Material) {
		m.EmissiveFactor = emissive
	}
}

// WithBaseColorTexture is an option builder that sets the base color texture.
//
// Parameters:
//   - tex: the texture for the base color slot
//
// Returns:
//   - MaterialBuilderOption: a function that applies the texture option to a material
func WithBaseColorTexture(tex *Texture) MaterialBuilderOption {
	return func(m *Material) {
		m.BaseColorTexture = tex
	}
}

// WithNormalTexture is an option builder that sets the normal map texture.
//
// Parameters:
//   - tex: the texture for the normal slot
//
// Returns:
//   - MaterialBuilderOption: a function that applies the texture option to a material
func WithNormalTexture(tex *Texture) MaterialBuilderOption {
	return func(m *Material) {
		m.NormalTexture = tex
	}
}

// WithMetallicRoughnessTexture is an option builder that sets the metallic-roughness texture.
//
// Parameters:
//   - tex: the texture for the metallic-roughness slot
//
// Returns:
//   - MaterialBuilderOption: a function that applies the texture option to a material
func WithMetallicRoughnessTexture(tex *Texture) MaterialBuilderOption {
	return func(m *Material) {
		m.MetallicRoughnessTexture = tex
	}
}

// WithAlpha is an option builder that sets how alpha is interpreted.
//
// Parameters:
//   - mode: the alpha mode
//   - cutoff: the mask threshold, used only by AlphaMask
//
// Returns:
//   - MaterialBuilderOption: a function that applies the alpha option to a material
func WithAlpha(mode AlphaMode, cutoff float32) MaterialBuilderOption {
	return func(m *Material) {
		m.AlphaMode = mode
		m.AlphaCutoff = cutoff
	}
}

// WithDoubleSided is an option builder that disables back-face culling for the material.
//
// Parameters:
//   - doubleSided: whether both faces are drawn
//
// Returns:
//   - MaterialBuilderOption: a function that applies the option to a material
func WithDoubleSided(doubleSided bool) MaterialBuilderOption {
	return func(m *Material) {
		m.DoubleSided = doubleSided
	}
}
