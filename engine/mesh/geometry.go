package mesh

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
)

// cubeStride is the interleaved vertex size: position, normal, uv.
const cubeStride = 32

// Cube builds a unit cube centred on the origin with normals and texture coordinates,
// interleaved in a single buffer and indexed with u16.
//
// Parameters:
//   - size: the edge length
//   - mat: the material of the single primitive, may be nil
//
// Returns:
//   - *Mesh: the cube mesh
func Cube(size float32, mat *material.Material) *Mesh {
	h := size / 2
	faces := []struct {
		normal [3]float32
		corner [4][3]float32
	}{
		{[3]float32{0, 0, 1}, [4][3]float32{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertexCount := len(faces) * 4
	indexCount := len(faces) * 6
	vertexBytes := vertexCount * cubeStride
	data := make([]byte, vertexBytes+indexCount*2)

	for f, face := range faces {
		for c := 0; c < 4; c++ {
			at := (f*4 + c) * cubeStride
			common.PutFloat32s(data[at:], face.corner[c][:])
			common.PutFloat32s(data[at+12:], face.normal[:])
			common.PutFloat32s(data[at+24:], uvs[c][:])
		}
		base := uint16(f * 4)
		for i, v := range []uint16{0, 1, 2, 0, 2, 3} {
			binary.LittleEndian.PutUint16(data[vertexBytes+(f*6+i)*2:], base+v)
		}
	}

	buf := NewBuffer(data)
	attr := func(offset uint64, components uint32) Accessor {
		return Accessor{
			Buffer:        buf,
			ByteOffset:    offset,
			ByteStride:    cubeStride,
			ComponentType: ComponentFloat,
			Components:    components,
			Count:         uint32(vertexCount),
		}
	}
	return &Mesh{
		Name: "cube",
		Primitives: []*Primitive{{
			Topology: TopologyTriangles,
			Attributes: map[string]Accessor{
				"POSITION":   attr(0, 3),
				"NORMAL":     attr(12, 3),
				"TEXCOORD_0": attr(24, 2),
			},
			Indices: &Accessor{
				Buffer:        buf,
				ByteOffset:    uint64(vertexBytes),
				ComponentType: ComponentUnsignedShort,
				Components:    1,
				Count:         uint32(indexCount),
			},
			Material: mat,
		}},
	}
}
