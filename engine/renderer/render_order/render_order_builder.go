package render_order

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/pipeline"
	"github.com/charmbracelet/log"
)

// BuilderOption is a function that configures a render order builder.
type BuilderOption func(*builder)

// WithLogger sets the logger of the builder.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - BuilderOption: a function that applies the option to a builder
func WithLogger(l *log.Logger) BuilderOption {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithEntryPoints overrides the vertex and fragment entry points of every pipeline.
func WithEntryPoints(vs, fs string) BuilderOption {
	return func(b *builder) {
		if vs != "" {
			b.vsEntry = vs
		}
		if fs != "" {
			b.fsEntry = fs
		}
	}
}

// WithStateOptions appends pipeline state options to every pipeline the builder
// resolves, after the material's own options.
func WithStateOptions(opts ...pipeline.StateBuilderOption) BuilderOption {
	return func(b *builder) {
		b.extraOps = append(b.extraOps, opts...)
	}
}
