package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/charmbracelet/log"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser  gltfParser
	logger  *log.Logger
	buffers []*mesh.Buffer
}

// gltfMeshExtractor turns glTF meshes into engine meshes whose accessors point into shared
// buffers. The accessors are not validated here; the batcher validates each primitive
// when it is drawn.
type gltfMeshExtractor interface {
	// ExtractMesh extracts a mesh by index.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh in the document
	//   - materials: the document's materials by index
	//
	// Returns:
	//   - *mesh.Mesh: one primitive per glTF primitive
	//   - error: error if the mesh refers to elements the document lacks
	ExtractMesh(meshIndex int, materials []*material.Material) (*mesh.Mesh, error)

	// ExtractAllMeshes extracts every mesh in document order.
	//
	// Parameters:
	//   - materials: the document's materials by index
	//
	// Returns:
	//   - []*mesh.Mesh: the meshes
	//   - error: the first extraction error
	ExtractAllMeshes(materials []*material.Material) ([]*mesh.Mesh, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a mesh extractor. Every glTF buffer becomes one engine
// buffer shared by all accessors that read it.
func newGLTFMeshExtractor(parser gltfParser, logger *log.Logger) gltfMeshExtractor {
	doc := parser.Document()
	buffers := make([]*mesh.Buffer, len(doc.Buffers))
	for i := range doc.Buffers {
		buffers[i] = mesh.NewBuffer(doc.Buffers[i].data)
	}
	return &gltfMeshExtractorImpl{parser: parser, logger: logger, buffers: buffers}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int, materials []*material.Material) (*mesh.Mesh, error) {
	doc := e.parser.Document()
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, fmt.Errorf("%w: mesh %d", ErrIndexOutOfRange, meshIndex)
	}
	gm := &doc.Meshes[meshIndex]
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("mesh_%d", meshIndex)
	}

	out := &mesh.Mesh{Name: name}
	for pi := range gm.Primitives {
		gp := &gm.Primitives[pi]
		prim := &mesh.Primitive{
			Topology:   mesh.Topology(gltfPrimitiveModeTriangles),
			Attributes: make(map[string]mesh.Accessor, len(gp.Attributes)),
		}
		if gp.Mode != nil {
			prim.Topology = mesh.Topology(*gp.Mode)
		}

		for attr, ai := range gp.Attributes {
			acc, ok, err := e.accessor(ai)
			if err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d %s: %w", name, pi, attr, err)
			}
			if !ok {
				e.logger.Warn("dropping attribute without buffer data", "mesh", name, "primitive", pi, "attribute", attr)
				continue
			}
			prim.Attributes[attr] = acc
		}

		if gp.Indices != nil {
			acc, ok, err := e.accessor(*gp.Indices)
			if err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d indices: %w", name, pi, err)
			}
			if !ok {
				e.logger.Warn("dropping primitive with unreadable indices", "mesh", name, "primitive", pi)
				continue
			}
			prim.Indices = &acc
		}

		if gp.Material != nil {
			if *gp.Material < 0 || *gp.Material >= len(materials) {
				return nil, fmt.Errorf("mesh %q primitive %d: %w: material %d", name, pi, ErrIndexOutOfRange, *gp.Material)
			}
			prim.Material = materials[*gp.Material]
		}
		out.Primitives = append(out.Primitives, prim)
	}
	return out, nil
}

func (e *gltfMeshExtractorImpl) ExtractAllMeshes(materials []*material.Material) ([]*mesh.Mesh, error) {
	doc := e.parser.Document()
	meshes := make([]*mesh.Mesh, len(doc.Meshes))
	for i := range doc.Meshes {
		m, err := e.ExtractMesh(i, materials)
		if err != nil {
			return nil, err
		}
		meshes[i] = m
	}
	return meshes, nil
}

// accessor resolves an accessor to a view of an engine buffer. Sparse accessors and
// accessors without a buffer view have no bytes to point at and report false.
func (e *gltfMeshExtractorImpl) accessor(index int) (mesh.Accessor, bool, error) {
	doc := e.parser.Document()
	if index < 0 || index >= len(doc.Accessors) {
		return mesh.Accessor{}, false, fmt.Errorf("%w: accessor %d", ErrIndexOutOfRange, index)
	}
	ga := &doc.Accessors[index]
	if ga.Sparse != nil || ga.BufferView == nil {
		return mesh.Accessor{}, false, nil
	}
	if *ga.BufferView < 0 || *ga.BufferView >= len(doc.BufferViews) {
		return mesh.Accessor{}, false, fmt.Errorf("%w: buffer view %d", ErrIndexOutOfRange, *ga.BufferView)
	}
	bv := &doc.BufferViews[*ga.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(e.buffers) {
		return mesh.Accessor{}, false, fmt.Errorf("%w: buffer %d", ErrIndexOutOfRange, bv.Buffer)
	}

	acc := mesh.Accessor{
		Buffer:        e.buffers[bv.Buffer],
		ByteOffset:    uint64(bv.ByteOffset + ga.ByteOffset),
		ComponentType: mesh.ComponentType(ga.ComponentType),
		Components:    gltfAccessorTypeComponentCount(ga.Type),
		Normalized:    ga.Normalized,
		Count:         uint32(ga.Count),
	}
	if bv.ByteStride != nil {
		acc.ByteStride = uint64(*bv.ByteStride)
	}
	return acc, true, nil
}
