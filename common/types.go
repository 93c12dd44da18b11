// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/cogentcore/webgpu/wgpu"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrFormatMismatch is returned when pixel data and its declared target disagree on size or format.
var ErrFormatMismatch = errors.New("common: texture format mismatch")

// TextureStagingData holds RGBA pixel data for a texture binding pending GPU upload.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// Validate checks that the pixel buffer holds exactly Width*Height RGBA texels.
//
// Returns:
//   - error: an error wrapping ErrFormatMismatch if the sizes disagree, otherwise nil
func (t TextureStagingData) Validate() error {
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("%w: zero extent %dx%d", ErrFormatMismatch, t.Width, t.Height)
	}
	if want := int(t.Width) * int(t.Height) * 4; len(t.Pixels) != want {
		return fmt.Errorf("%w: %dx%d RGBA needs %d bytes, have %d", ErrFormatMismatch, t.Width, t.Height, want, len(t.Pixels))
	}
	return nil
}

// CheckExtent verifies that the staging data can be written into a destination texture of the given size.
//
// Parameters:
//   - width: destination width in pixels
//   - height: destination height in pixels
//
// Returns:
//   - error: an error wrapping ErrFormatMismatch if the extents differ, otherwise nil
func (t TextureStagingData) CheckExtent(width, height uint32) error {
	if t.Width != width || t.Height != height {
		return fmt.Errorf("%w: source %dx%d, destination %dx%d", ErrFormatMismatch, t.Width, t.Height, width, height)
	}
	return nil
}

// SolidColor returns 1x1 staging data filled with a single RGBA color.
//
// Parameters:
//   - rgba: the texel color
//
// Returns:
//   - TextureStagingData: the single-texel staging data
func SolidColor(rgba [4]uint8) TextureStagingData {
	return TextureStagingData{
		Pixels: []byte{rgba[0], rgba[1], rgba[2], rgba[3]},
		Width:  1,
		Height: 1,
	}
}

// DecodeImage decodes PNG, JPEG, BMP or WebP bytes into RGBA staging data.
//
// Parameters:
//   - data: the encoded image bytes
//
// Returns:
//   - TextureStagingData: the decoded RGBA pixels
//   - error: error if decoding fails
func DecodeImage(data []byte) (TextureStagingData, error) {
	if len(data) == 0 {
		return TextureStagingData{}, errors.New("common: image has no data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// It is pure value data, so it doubles as the sampler cache descriptor.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers.
	Compare wgpu.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// WithDefaults fills unset fields with the engine defaults: repeat addressing, linear filtering,
// a LOD range of [0, 32] and an anisotropy of 1. Two descriptors that differ only in spelling the
// defaults out resolve to the same value.
//
// Returns:
//   - SamplerStagingData: a copy with defaults applied
func (s SamplerStagingData) WithDefaults() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  Coalesce(s.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  Coalesce(s.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  Coalesce(s.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     Coalesce(s.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     Coalesce(s.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  Coalesce(s.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   Coalesce(s.LodMaxClamp, 32.0),
		Compare:       s.Compare,
		MaxAnisotropy: Coalesce(s.MaxAnisotropy, 1),
	}
}

// Descriptor converts the staging data into a wgpu sampler descriptor with defaults applied.
//
// Parameters:
//   - label: debug label for the sampler
//
// Returns:
//   - *wgpu.SamplerDescriptor: the descriptor ready for device creation
func (s SamplerStagingData) Descriptor(label string) *wgpu.SamplerDescriptor {
	d := s.WithDefaults()
	return &wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  d.AddressModeU,
		AddressModeV:  d.AddressModeV,
		AddressModeW:  d.AddressModeW,
		MagFilter:     d.MagFilter,
		MinFilter:     d.MinFilter,
		MipmapFilter:  d.MipmapFilter,
		LodMinClamp:   d.LodMinClamp,
		LodMaxClamp:   d.LodMaxClamp,
		MaxAnisotropy: d.MaxAnisotropy,
		Compare:       d.Compare,
	}
}
