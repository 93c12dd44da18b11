package render_order

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/pipeline"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// Options are the per-build inputs that do not come from the layout.
type Options struct {
	// Instances is the GPU instance buffer the layout's ranges index into.
	Instances *wgpu.Buffer
	// DefaultMaterial is drawn for primitives without a material. Nil defers them.
	DefaultMaterial *material.Material

	ColorFormat wgpu.TextureFormat
	DepthFormat wgpu.TextureFormat
	SampleCount uint32
}

type builder struct {
	scene    arena.Scene
	logger   *log.Logger
	vsEntry  string
	fsEntry  string
	extraOps []pipeline.StateBuilderOption
}

// Builder materializes the pipelines and material bind groups of a layout.
type Builder interface {
	// Build resolves every group of the layout to a pipeline and a material bind group
	// and appends its draw. Pipelines come from the shared arena; material bind groups,
	// geometry buffers and globals come from the scene arena.
	//
	// Parameters:
	//   - layout: the batcher layout
	//   - opts: the instance buffer, the default material and the target formats
	//
	// Returns:
	//   - *RenderOrder: the draw order
	//   - error: the first shader, pipeline, key or upload error
	Build(layout *batcher.Layout, opts Options) (*RenderOrder, error)
}

var _ Builder = &builder{}

// NewBuilder creates a builder drawing into a scene arena.
//
// Parameters:
//   - sc: the scene arena
//   - options: functional options
//
// Returns:
//   - Builder: the builder
func NewBuilder(sc arena.Scene, options ...BuilderOption) Builder {
	if sc == nil {
		panic("render_order: NewBuilder requires a scene arena")
	}
	b := &builder{
		scene:   sc,
		logger:  logger.For("render_order"),
		vsEntry: "vs_main",
		fsEntry: "fs_main",
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *builder) Build(layout *batcher.Layout, opts Options) (*RenderOrder, error) {
	order := newRenderOrder()
	if layout == nil {
		return order, nil
	}
	if layout.Total > 0 && opts.Instances == nil {
		return nil, fmt.Errorf("render_order: layout has %d instances but no instance buffer", layout.Total)
	}

	globals, err := b.scene.Globals()
	if err != nil {
		return nil, fmt.Errorf("render_order: globals: %w", err)
	}

	for _, g := range layout.Groups {
		mat := g.Primitive.Material
		if mat == nil {
			mat = opts.DefaultMaterial
		}
		if mat == nil {
			order.Deferred = append(order.Deferred, Deferred{Group: g, Reason: ErrNoMaterial})
			b.logger.Debug("deferring group without material", "group", g.Key.Short(), "instances", g.Range.Count)
			continue
		}

		build, err := mat.Build(material.BuildOptions{VertexFlags: g.Layout.Flags})
		if err != nil {
			return nil, fmt.Errorf("render_order: group %s: %w", g.Key.Short(), err)
		}
		p, err := b.pipeline(g.Layout, build, opts)
		if err != nil {
			return nil, fmt.Errorf("render_order: group %s: %w", g.Key.Short(), err)
		}
		provider, err := b.scene.MaterialBindGroup(build)
		if err != nil {
			return nil, fmt.Errorf("render_order: group %s material %q: %w", g.Key.Short(), mat.Name, err)
		}
		draw, err := b.draw(g, opts.Instances)
		if err != nil {
			return nil, fmt.Errorf("render_order: group %s: %w", g.Key.Short(), err)
		}

		mb := order.pipelineBatch(p, globals).materialBatch(build.Key, mat.Name, provider)
		mb.Draws = append(mb.Draws, draw)
	}

	b.logger.Debug("built render order", "pipelines", len(order.Pipelines), "materials", order.Materials(), "draws", order.Draws(), "deferred", len(order.Deferred))
	return order, nil
}

// pipeline compiles the material's shader variant and resolves the pipeline state of a
// primitive drawn with it.
func (b *builder) pipeline(pl *mesh.Layout, build *material.Build, opts Options) (pipeline.Pipeline, error) {
	module, err := b.scene.Module(build.Source, build.Context)
	if err != nil {
		return nil, err
	}

	stateOpts := []pipeline.StateBuilderOption{
		pipeline.WithLabel(build.Source + " Pipeline"),
		pipeline.WithVertexModule(module.Key, b.vsEntry),
		pipeline.WithFragmentModule(module.Key, b.fsEntry),
		pipeline.WithVertexBuffers(pl.BufferLayouts()...),
		pipeline.WithBindGroup(material.GlobalsGroup, material.GlobalsEntries()...),
		pipeline.WithBindGroup(material.MaterialGroup, build.Entries...),
		pipeline.WithTopology(pl.Topology, pl.StripIndexFormat),
	}
	if opts.ColorFormat != wgpu.TextureFormatUndefined {
		stateOpts = append(stateOpts, pipeline.WithColorFormat(opts.ColorFormat))
	}
	if opts.DepthFormat != wgpu.TextureFormatUndefined {
		stateOpts = append(stateOpts, pipeline.WithDepthFormat(opts.DepthFormat))
	}
	if opts.SampleCount > 0 {
		stateOpts = append(stateOpts, pipeline.WithSampleCount(opts.SampleCount))
	}
	stateOpts = append(stateOpts, build.PipelineOptions()...)
	stateOpts = append(stateOpts, b.extraOps...)

	return b.scene.Pipeline(pipeline.NewState(stateOpts...), module, module)
}

// draw uploads the group's geometry through the scene arena and describes its draw.
func (b *builder) draw(g *batcher.Group, instances *wgpu.Buffer) (DrawEntry, error) {
	pl := g.Layout
	d := DrawEntry{
		Group: g.Key,
		Count: pl.Count,
		Range: g.Range,
		Instances: VertexBuffer{
			Slot:   pl.InstanceSlot(),
			Buffer: instances,
			Offset: 0,
			Size:   wgpu.WholeSize,
		},
	}
	for _, v := range pl.Vertices {
		buf, err := b.scene.GeometryBuffer(v.Accessor.Buffer)
		if err != nil {
			return DrawEntry{}, fmt.Errorf("%s: %w", v.Attribute, err)
		}
		d.Vertices = append(d.Vertices, VertexBuffer{
			Slot:   v.Slot,
			Buffer: buf,
			Offset: v.Accessor.ByteOffset,
			Size:   v.Accessor.ByteLength(),
		})
	}
	if pl.Index != nil {
		buf, err := b.scene.GeometryBuffer(pl.Index.Accessor.Buffer)
		if err != nil {
			return DrawEntry{}, fmt.Errorf("indices: %w", err)
		}
		d.Index = &IndexBuffer{
			Buffer: buf,
			Format: pl.Index.Format,
			Offset: pl.Index.Accessor.ByteOffset,
			Size:   pl.Index.Accessor.ByteLength(),
		}
	}
	return d, nil
}
