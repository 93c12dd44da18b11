package material

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// LitSourceName is the shader source name of the built-in lit shader.
const LitSourceName = "lit"

// LitSource is the WGSL of the built-in lit shader. It reads the globals from group 0
// and the material from group 1, and takes the per-instance world and normal matrices
// from vertex locations 4 to 11.
//
//go:embed assets/lit.wgsl
var LitSource string

// Sources returns the built-in shader sources keyed by source name.
func Sources() map[string]string {
	return map[string]string{LitSourceName: LitSource}
}

// Bind group indices used by the lit shader.
const (
	GlobalsGroup  = 0
	MaterialGroup = 1
)

// Material group bindings.
const (
	BindingParams = iota
	BindingBaseColorTexture
	BindingBaseColorSampler
	BindingNormalTexture
	BindingNormalSampler
	BindingMetallicRoughnessTexture
	BindingMetallicRoughnessSampler
)

// GPUGlobals is the per-scene uniform bound at group 0.
// Size: 96 bytes (mat4 + two vec4, std140 aligned).
type GPUGlobals struct {
	ViewProj       [16]float32 // offset 0: column-major view-projection matrix
	CameraPosition [4]float32  // offset 64: world position, w unused
	LightDirection [4]float32  // offset 80: direction the light travels, w unused
}

// GPUGlobalsSize is the byte size of GPUGlobals.
const GPUGlobalsSize = 96

// Marshal serializes the globals into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload.
func (g *GPUGlobals) Marshal() []byte {
	buf := make([]byte, GPUGlobalsSize)
	common.PutFloat32s(buf[0:64], g.ViewProj[:])
	common.PutFloat32s(buf[64:80], g.CameraPosition[:])
	common.PutFloat32s(buf[80:96], g.LightDirection[:])
	return buf
}

// GPUMaterialParams is the material uniform bound at group 1, binding 0.
// Size: 48 bytes (three vec4, std140 aligned).
type GPUMaterialParams struct {
	BaseColor   [4]float32 // offset 0: RGBA factor
	Emissive    [3]float32 // offset 16: RGB emissive factor
	AlphaCutoff float32    // offset 28: mask cutoff, used with ALPHA_MASK
	Metallic    float32    // offset 32
	Roughness   float32    // offset 36
	_           [2]float32 // offset 40: padding
}

// GPUMaterialParamsSize is the byte size of GPUMaterialParams.
const GPUMaterialParamsSize = 48

// Marshal serializes the params into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUMaterialParams) Marshal() []byte {
	buf := make([]byte, GPUMaterialParamsSize)
	common.PutFloat32s(buf[0:16], g.BaseColor[:])
	common.PutFloat32s(buf[16:28], g.Emissive[:])
	common.PutFloat32s(buf[28:32], []float32{g.AlphaCutoff})
	common.PutFloat32s(buf[32:40], []float32{g.Metallic, g.Roughness})
	return buf
}

// GlobalsEntries returns the layout entries of the globals group.
func GlobalsEntries() []wgpu.BindGroupLayoutEntry {
	return []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: GPUGlobalsSize,
			},
		},
	}
}

// Entries returns the layout entries of the material group.
func Entries() []wgpu.BindGroupLayoutEntry {
	texture := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		}
	}
	sampler := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageFragment,
			Sampler: wgpu.SamplerBindingLayout{
				Type: wgpu.SamplerBindingTypeFiltering,
			},
		}
	}
	return []wgpu.BindGroupLayoutEntry{
		{
			Binding:    BindingParams,
			Visibility: wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: GPUMaterialParamsSize,
			},
		},
		texture(BindingBaseColorTexture),
		sampler(BindingBaseColorSampler),
		texture(BindingNormalTexture),
		sampler(BindingNormalSampler),
		texture(BindingMetallicRoughnessTexture),
		sampler(BindingMetallicRoughnessSampler),
	}
}
