package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser
	logger *log.Logger
	docID  string
	images map[int]*common.TextureStagingData
}

// gltfMaterialExtractor converts glTF materials into engine materials, decoding each
// referenced image once.
type gltfMaterialExtractor interface {
	// ExtractMaterial extracts a material by index.
	//
	// Parameters:
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - *material.Material: the material with decoded textures
	//   - error: error if an image cannot be read or decoded
	ExtractMaterial(materialIndex int) (*material.Material, error)

	// ExtractAllMaterials extracts every material in document order.
	//
	// Returns:
	//   - []*material.Material: the materials
	//   - error: the first extraction error
	ExtractAllMaterials() ([]*material.Material, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a material extractor. Embedded images are identified
// by docID and their index so images of different documents never share an identity.
func newGLTFMaterialExtractor(parser gltfParser, logger *log.Logger, docID string) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{
		parser: parser,
		logger: logger,
		docID:  docID,
		images: make(map[int]*common.TextureStagingData),
	}
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (*material.Material, error) {
	doc := e.parser.Document()
	if materialIndex < 0 || materialIndex >= len(doc.Materials) {
		return nil, fmt.Errorf("%w: material %d", ErrIndexOutOfRange, materialIndex)
	}
	gm := &doc.Materials[materialIndex]
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("material_%d", materialIndex)
	}

	// glTF defaults metallic to 1
	opts := []material.MaterialBuilderOption{
		material.WithName(name),
		material.WithMetallic(1),
		material.WithDoubleSided(gm.DoubleSided),
	}

	if pbr := gm.PbrMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			opts = append(opts, material.WithBaseColor(*pbr.BaseColorFactor))
		}
		if pbr.MetallicFactor != nil {
			opts = append(opts, material.WithMetallic(*pbr.MetallicFactor))
		}
		if pbr.RoughnessFactor != nil {
			opts = append(opts, material.WithRoughness(*pbr.RoughnessFactor))
		}
		if pbr.BaseColorTexture != nil {
			tex, err := e.texture(pbr.BaseColorTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("material %q base color texture: %w", name, err)
			}
			opts = append(opts, material.WithBaseColorTexture(tex))
		}
		if pbr.MetallicRoughnessTexture != nil {
			tex, err := e.texture(pbr.MetallicRoughnessTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("material %q metallic-roughness texture: %w", name, err)
			}
			opts = append(opts, material.WithMetallicRoughnessTexture(tex))
		}
	}
	if gm.NormalTexture != nil {
		tex, err := e.texture(gm.NormalTexture.Index)
		if err != nil {
			return nil, fmt.Errorf("material %q normal texture: %w", name, err)
		}
		opts = append(opts, material.WithNormalTexture(tex))
	}
	if gm.EmissiveFactor != nil {
		opts = append(opts, material.WithEmissive(*gm.EmissiveFactor))
	}

	if gm.AlphaMode != "" {
		mode, err := material.ParseAlphaMode(gm.AlphaMode)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", name, err)
		}
		cutoff := float32(0.5)
		if gm.AlphaCutoff != nil {
			cutoff = *gm.AlphaCutoff
		}
		if mode != material.AlphaMask {
			cutoff = 0
		}
		opts = append(opts, material.WithAlpha(mode, cutoff))
	}

	return material.NewMaterial(opts...), nil
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials() ([]*material.Material, error) {
	doc := e.parser.Document()
	materials := make([]*material.Material, len(doc.Materials))
	for i := range doc.Materials {
		m, err := e.ExtractMaterial(i)
		if err != nil {
			return nil, err
		}
		materials[i] = m
	}
	return materials, nil
}

// texture resolves a texture index. A texture whose external image file is missing is
// returned as nil so the material falls back to its solid color.
func (e *gltfMaterialExtractorImpl) texture(textureIndex int) (*material.Texture, error) {
	doc := e.parser.Document()
	if textureIndex < 0 || textureIndex >= len(doc.Textures) {
		return nil, fmt.Errorf("%w: texture %d", ErrIndexOutOfRange, textureIndex)
	}
	gt := &doc.Textures[textureIndex]
	if gt.Source == nil {
		return nil, nil
	}

	var sampler common.SamplerStagingData
	if gt.Sampler != nil {
		if *gt.Sampler < 0 || *gt.Sampler >= len(doc.Samplers) {
			return nil, fmt.Errorf("%w: sampler %d", ErrIndexOutOfRange, *gt.Sampler)
		}
		sampler = gltfSamplerToStagingData(&doc.Samplers[*gt.Sampler])
	}

	imageIndex := *gt.Source
	if imageIndex < 0 || imageIndex >= len(doc.Images) {
		return nil, fmt.Errorf("%w: image %d", ErrIndexOutOfRange, imageIndex)
	}
	img := &doc.Images[imageIndex]

	source := fmt.Sprintf("%s#image/%d", e.docID, imageIndex)
	if img.URI != "" && !strings.HasPrefix(img.URI, "data:") {
		source = filepath.ToSlash(filepath.Join(e.parser.BaseDir(), img.URI))
	}

	staging, err := e.image(imageIndex)
	if errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("image file missing, using fallback", "image", source)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &material.Texture{Source: source, Image: staging, Sampler: sampler}, nil
}

// image decodes an image once per document.
func (e *gltfMaterialExtractorImpl) image(imageIndex int) (*common.TextureStagingData, error) {
	if staging, ok := e.images[imageIndex]; ok {
		return staging, nil
	}
	img := &e.parser.Document().Images[imageIndex]

	var data []byte
	var err error
	switch {
	case img.BufferView != nil:
		data, err = e.parser.BufferView(*img.BufferView)
	case img.URI != "":
		data, _, err = e.parser.LoadURI(img.URI)
	default:
		err = fmt.Errorf("%w: image %d has neither a buffer view nor a URI", ErrInvalidBufferURI, imageIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", imageIndex, err)
	}

	staging, err := common.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", imageIndex, err)
	}
	e.images[imageIndex] = &staging
	return &staging, nil
}

// gltfSamplerToStagingData converts a glTF sampler, leaving unset fields zero so the
// engine defaults apply.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#reference-sampler
func gltfSamplerToStagingData(s *gltfSampler) common.SamplerStagingData {
	var result common.SamplerStagingData

	if s.MagFilter != nil {
		switch *s.MagFilter {
		case gltfFilterNearest:
			result.MagFilter = wgpu.FilterModeNearest
		case gltfFilterLinear:
			result.MagFilter = wgpu.FilterModeLinear
		}
	}

	if s.MinFilter != nil {
		switch *s.MinFilter {
		case gltfFilterNearest, gltfFilterNearestMipmapNearest, gltfFilterNearestMipmapLinear:
			result.MinFilter = wgpu.FilterModeNearest
		case gltfFilterLinear, gltfFilterLinearMipmapNearest, gltfFilterLinearMipmapLinear:
			result.MinFilter = wgpu.FilterModeLinear
		}
		switch *s.MinFilter {
		case gltfFilterNearestMipmapNearest, gltfFilterLinearMipmapNearest, gltfFilterNearest, gltfFilterLinear:
			result.MipmapFilter = wgpu.MipmapFilterModeNearest
		case gltfFilterNearestMipmapLinear, gltfFilterLinearMipmapLinear:
			result.MipmapFilter = wgpu.MipmapFilterModeLinear
		}
	}

	if s.WrapS != nil {
		result.AddressModeU = gltfWrapToAddressMode(*s.WrapS)
	}
	if s.WrapT != nil {
		result.AddressModeV = gltfWrapToAddressMode(*s.WrapT)
	}
	return result
}

func gltfWrapToAddressMode(wrap int) wgpu.AddressMode {
	switch wrap {
	case gltfWrapClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gltfWrapMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}
