package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-instancer/engine/model"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct {
	logger *log.Logger
}

// gltfLoaderBackend is a loaderBackend implementation for glTF and GLB containers.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

func newGLTFLoaderBackend(logger *log.Logger) gltfLoaderBackend {
	return &gltfLoaderBackendImpl{logger: logger}
}

func (b *gltfLoaderBackendImpl) Load(path string) (model.Model, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return b.extract(name, parser)
}

func (b *gltfLoaderBackendImpl) LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error) {
	parser := newGLTFParser()
	if err := parser.ParseReader(r, isGLB); err != nil {
		return nil, err
	}
	return b.extract(name, parser)
}

// extract converts a parsed document: materials first, since primitives refer to them,
// then meshes, then the node hierarchy.
func (b *gltfLoaderBackendImpl) extract(name string, parser gltfParser) (model.Model, error) {
	doc := parser.Document()
	for _, ext := range doc.ExtensionsRequired {
		b.logger.Warn("ignoring required extension", "model", name, "extension", ext)
	}

	docID := uuid.NewString()
	materials, err := newGLTFMaterialExtractor(parser, b.logger, docID).ExtractAllMaterials()
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	meshes, err := newGLTFMeshExtractor(parser, b.logger).ExtractAllMeshes(materials)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	roots, err := extractScene(doc)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}

	m := model.NewModel(
		model.WithName(name),
		model.WithMeshes(meshes...),
		model.WithMaterials(materials...),
		model.WithRoots(roots...),
	)
	b.logger.Info("imported model", "model", name, "meshes", len(meshes), "primitives", m.PrimitiveCount(), "materials", len(materials), "roots", len(roots))
	return m, nil
}
