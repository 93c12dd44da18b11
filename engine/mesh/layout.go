package mesh

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	ErrUnsupportedTopology  = errors.New("mesh: unsupported topology")
	ErrUnsupportedAttribute = errors.New("mesh: unsupported attribute")
	ErrMissingPosition      = errors.New("mesh: primitive has no POSITION attribute")
)

// Shader locations of the bound vertex attributes. The per-instance matrices follow at
// InstanceLocation.
const (
	LocationPosition = 0
	LocationNormal   = 1
	LocationTexcoord = 2
	LocationColor    = 3
	InstanceLocation = 4
)

// InstanceStride is the byte size of one instance block: a world matrix then a normal matrix.
const InstanceStride = 128

// Vertex flags enabled for the shader when the matching attribute is bound.
const (
	FlagNormal = "HAS_NORMAL"
	FlagUV     = "HAS_UV"
	FlagColor  = "HAS_COLOR"
)

// recognized attributes that are valid but not consumed by the renderer.
var unbound = regexp.MustCompile(`^(TANGENT|TEXCOORD_[1-9][0-9]*|COLOR_[1-9][0-9]*|JOINTS_[0-9]+|WEIGHTS_[0-9]+)$`)

type formatKey struct {
	component  ComponentType
	components uint32
	normalized bool
}

type attributeRule struct {
	location uint32
	flag     string
	formats  map[formatKey]wgpu.VertexFormat
}

var attributeRules = map[string]attributeRule{
	"POSITION": {
		location: LocationPosition,
		formats: map[formatKey]wgpu.VertexFormat{
			{ComponentFloat, 3, false}: wgpu.VertexFormatFloat32x3,
		},
	},
	"NORMAL": {
		location: LocationNormal,
		flag:     FlagNormal,
		formats: map[formatKey]wgpu.VertexFormat{
			{ComponentFloat, 3, false}: wgpu.VertexFormatFloat32x3,
		},
	},
	"TEXCOORD_0": {
		location: LocationTexcoord,
		flag:     FlagUV,
		formats: map[formatKey]wgpu.VertexFormat{
			{ComponentFloat, 2, false}:        wgpu.VertexFormatFloat32x2,
			{ComponentUnsignedByte, 2, true}:  wgpu.VertexFormatUnorm8x2,
			{ComponentUnsignedShort, 2, true}: wgpu.VertexFormatUnorm16x2,
		},
	},
	"COLOR_0": {
		location: LocationColor,
		flag:     FlagColor,
		formats: map[formatKey]wgpu.VertexFormat{
			{ComponentFloat, 3, false}:        wgpu.VertexFormatFloat32x3,
			{ComponentFloat, 4, false}:        wgpu.VertexFormatFloat32x4,
			{ComponentUnsignedByte, 4, true}:  wgpu.VertexFormatUnorm8x4,
			{ComponentUnsignedShort, 4, true}: wgpu.VertexFormatUnorm16x4,
		},
	},
}

// VertexBinding is one attribute bound to its own vertex buffer slot.
type VertexBinding struct {
	Attribute string
	Slot      uint32
	Location  uint32
	Format    wgpu.VertexFormat
	Accessor  Accessor
}

// IndexBinding is the index buffer of a primitive.
type IndexBinding struct {
	Accessor Accessor
	Format   wgpu.IndexFormat
}

// Layout is the validated draw shape of a primitive.
type Layout struct {
	Topology         wgpu.PrimitiveTopology
	StripIndexFormat wgpu.IndexFormat
	Vertices         []VertexBinding
	Index            *IndexBinding
	// Count is the index count for indexed primitives, the vertex count otherwise.
	Count uint32
	// Flags lists the vertex flags in a stable order.
	Flags []string
}

// InstanceSlot returns the vertex buffer slot holding the instance blocks.
func (l *Layout) InstanceSlot() uint32 {
	return uint32(len(l.Vertices))
}

// BufferLayouts returns the vertex buffer layouts of the primitive followed by the
// per-instance layout.
//
// Returns:
//   - []wgpu.VertexBufferLayout: one layout per slot
func (l *Layout) BufferLayouts() []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, 0, len(l.Vertices)+1)
	for _, v := range l.Vertices {
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: v.Accessor.Stride(),
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: v.Format, Offset: 0, ShaderLocation: v.Location},
			},
		})
	}
	return append(out, InstanceBufferLayout())
}

// InstanceBufferLayout returns the per-instance layout: eight vec4 columns, the world
// matrix then the normal matrix.
//
// Returns:
//   - wgpu.VertexBufferLayout: the instance step layout
func InstanceBufferLayout() wgpu.VertexBufferLayout {
	attrs := make([]wgpu.VertexAttribute, 8)
	for i := range attrs {
		attrs[i] = wgpu.VertexAttribute{
			Format:         wgpu.VertexFormatFloat32x4,
			Offset:         uint64(i) * 16,
			ShaderLocation: uint32(InstanceLocation + i),
		}
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: InstanceStride,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes:  attrs,
	}
}

// WGPU converts a glTF mode to a WebGPU topology. Line loops and triangle fans have no
// WebGPU equivalent.
//
// Returns:
//   - wgpu.PrimitiveTopology: the topology
//   - error: ErrUnsupportedTopology for modes WebGPU cannot draw
func (t Topology) WGPU() (wgpu.PrimitiveTopology, error) {
	switch t {
	case TopologyPoints:
		return wgpu.PrimitiveTopologyPointList, nil
	case TopologyLines:
		return wgpu.PrimitiveTopologyLineList, nil
	case TopologyLineStrip:
		return wgpu.PrimitiveTopologyLineStrip, nil
	case TopologyTriangles:
		return wgpu.PrimitiveTopologyTriangleList, nil
	case TopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip, nil
	}
	return 0, fmt.Errorf("%w: mode %d", ErrUnsupportedTopology, uint32(t))
}

// Layout validates the primitive and derives its draw shape.
//
// Returns:
//   - *Layout: the vertex and index bindings of the primitive
//   - error: ErrUnsupportedTopology, ErrUnsupportedAttribute, ErrMissingPosition or
//     common.ErrFormatMismatch describing the first problem found
func (p *Primitive) Layout() (*Layout, error) {
	topology, err := p.Topology.WGPU()
	if err != nil {
		return nil, err
	}
	position, ok := p.Attributes["POSITION"]
	if !ok {
		return nil, ErrMissingPosition
	}

	names := make([]string, 0, len(p.Attributes))
	for name := range p.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)

	l := &Layout{Topology: topology, Count: position.Count}
	for _, name := range names {
		acc := p.Attributes[name]
		rule, ok := attributeRules[name]
		if !ok {
			if strings.HasPrefix(name, "_") || unbound.MatchString(name) {
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAttribute, name)
		}
		format, ok := rule.formats[formatKey{acc.ComponentType, acc.Components, acc.Normalized}]
		if !ok {
			return nil, fmt.Errorf("%w: %s as %dx%s (normalized=%v)", ErrUnsupportedAttribute, name, acc.Components, acc.ComponentType, acc.Normalized)
		}
		if acc.Stride()%4 != 0 || acc.ByteOffset%4 != 0 {
			return nil, fmt.Errorf("%w: %s stride %d offset %d not 4-byte aligned", ErrUnsupportedAttribute, name, acc.Stride(), acc.ByteOffset)
		}
		if acc.Count != position.Count {
			return nil, fmt.Errorf("%w: %s has %d elements, POSITION has %d", common.ErrFormatMismatch, name, acc.Count, position.Count)
		}
		if acc.Bytes() == nil {
			return nil, fmt.Errorf("%w: %s overruns its buffer", common.ErrFormatMismatch, name)
		}
		l.Vertices = append(l.Vertices, VertexBinding{Attribute: name, Location: rule.location, Format: format, Accessor: acc})
		if rule.flag != "" {
			l.Flags = append(l.Flags, rule.flag)
		}
	}
	slices.SortFunc(l.Vertices, func(a, b VertexBinding) int { return int(a.Location) - int(b.Location) })
	for i := range l.Vertices {
		l.Vertices[i].Slot = uint32(i)
	}
	slices.Sort(l.Flags)

	if p.Indices != nil {
		idx := *p.Indices
		var format wgpu.IndexFormat
		switch {
		case idx.ComponentType == ComponentUnsignedShort && idx.Components == 1:
			format = wgpu.IndexFormatUint16
		case idx.ComponentType == ComponentUnsignedInt && idx.Components == 1:
			format = wgpu.IndexFormatUint32
		default:
			return nil, fmt.Errorf("%w: index component %dx%s, want u16 or u32", common.ErrFormatMismatch, idx.Components, idx.ComponentType)
		}
		if idx.ByteStride != 0 && idx.ByteStride != idx.ElementSize() {
			return nil, fmt.Errorf("%w: strided indices", common.ErrFormatMismatch)
		}
		if idx.Bytes() == nil {
			return nil, fmt.Errorf("%w: indices overrun their buffer", common.ErrFormatMismatch)
		}
		l.Index = &IndexBinding{Accessor: idx, Format: format}
		l.Count = idx.Count
		if topology == wgpu.PrimitiveTopologyLineStrip || topology == wgpu.PrimitiveTopologyTriangleStrip {
			l.StripIndexFormat = format
		}
	}
	return l, nil
}

// Fatal reports whether a Layout error means the primitive can never be drawn, as opposed
// to a format the renderer merely does not support.
//
// Parameters:
//   - err: an error returned by Layout
//
// Returns:
//   - bool: true for a missing POSITION or a format mismatch
func Fatal(err error) bool {
	return errors.Is(err, ErrMissingPosition) || errors.Is(err, common.ErrFormatMismatch)
}
