// Package mesh holds geometry as the batcher sees it: primitives built from accessors into
// shared byte buffers, plus the validation that turns a primitive into a vertex layout.
package mesh

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/google/uuid"
)

// ComponentType is the glTF accessor component type code.
type ComponentType uint32

const (
	ComponentByte          ComponentType = 5120
	ComponentUnsignedByte  ComponentType = 5121
	ComponentShort         ComponentType = 5122
	ComponentUnsignedShort ComponentType = 5123
	ComponentUnsignedInt   ComponentType = 5125
	ComponentFloat         ComponentType = 5126
)

// Size returns the byte size of one component, or 0 for an unknown type.
func (c ComponentType) Size() uint64 {
	switch c {
	case ComponentByte, ComponentUnsignedByte:
		return 1
	case ComponentShort, ComponentUnsignedShort:
		return 2
	case ComponentUnsignedInt, ComponentFloat:
		return 4
	}
	return 0
}

func (c ComponentType) String() string {
	switch c {
	case ComponentByte:
		return "i8"
	case ComponentUnsignedByte:
		return "u8"
	case ComponentShort:
		return "i16"
	case ComponentUnsignedShort:
		return "u16"
	case ComponentUnsignedInt:
		return "u32"
	case ComponentFloat:
		return "f32"
	}
	return fmt.Sprintf("component(%d)", uint32(c))
}

// Topology is the glTF primitive mode.
type Topology uint32

const (
	TopologyPoints Topology = iota
	TopologyLines
	TopologyLineLoop
	TopologyLineStrip
	TopologyTriangles
	TopologyTriangleStrip
	TopologyTriangleFan
)

// Buffer is a block of geometry bytes shared by accessors. Its identity is the ID, so two
// primitives reading the same buffer compare equal without hashing the bytes.
type Buffer struct {
	ID   string
	Data []byte `key:"-"`
}

// NewBuffer wraps data in a Buffer with a fresh identifier.
//
// Parameters:
//   - data: the geometry bytes
//
// Returns:
//   - *Buffer: the new buffer
func NewBuffer(data []byte) *Buffer {
	return &Buffer{ID: uuid.NewString(), Data: data}
}

// Accessor describes a typed, strided view into a Buffer.
type Accessor struct {
	Buffer        *Buffer
	ByteOffset    uint64
	ByteStride    uint64
	ComponentType ComponentType
	Components    uint32
	Normalized    bool
	Count         uint32
}

// ElementSize returns the byte size of one element.
func (a Accessor) ElementSize() uint64 {
	return a.ComponentType.Size() * uint64(a.Components)
}

// Stride returns the distance between elements. A zero ByteStride means tightly packed.
func (a Accessor) Stride() uint64 {
	if a.ByteStride != 0 {
		return a.ByteStride
	}
	return a.ElementSize()
}

// ByteLength returns the number of bytes the accessor spans from its offset.
func (a Accessor) ByteLength() uint64 {
	if a.Count == 0 {
		return 0
	}
	return a.Stride()*uint64(a.Count-1) + a.ElementSize()
}

// Bytes returns the bytes the accessor spans, or nil if it overruns its buffer.
func (a Accessor) Bytes() []byte {
	if a.Buffer == nil {
		return nil
	}
	end := a.ByteOffset + a.ByteLength()
	if end > uint64(len(a.Buffer.Data)) {
		return nil
	}
	return a.Buffer.Data[a.ByteOffset:end]
}

// Primitive is one drawable piece of a mesh.
type Primitive struct {
	Topology   Topology
	Attributes map[string]Accessor
	Indices    *Accessor
	Material   *material.Material
}

// Mesh is a named list of primitives.
type Mesh struct {
	Name       string `key:"-"`
	Primitives []*Primitive
}
