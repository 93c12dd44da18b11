package arena

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/charmbracelet/log"
)

// SharedBuilderOption is a function that configures a shared arena during construction.
type SharedBuilderOption func(*shared)

// WithShaderOptions passes options through to the shader module cache.
//
// Parameters:
//   - options: shader module cache options, such as shader.WithSources
//
// Returns:
//   - SharedBuilderOption: a function that applies the options to the arena
func WithShaderOptions(options ...shader.ShaderModuleCacheBuilderOption) SharedBuilderOption {
	return func(s *shared) {
		s.shaderOptions = append(s.shaderOptions, options...)
	}
}

// WithLogger sets the logger of the arena and its caches.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SharedBuilderOption: a function that applies the logger to the arena
func WithLogger(l *log.Logger) SharedBuilderOption {
	return func(s *shared) {
		if l != nil {
			s.logger = l
		}
	}
}
