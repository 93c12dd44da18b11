package shader

import "github.com/charmbracelet/log"

// ShaderModuleCacheBuilderOption is a functional option used to configure a ShaderModuleCache during construction.
type ShaderModuleCacheBuilderOption func(*shaderModuleCache)

// WithValidator replaces the WGSL validator. A nil validator disables validation.
//
// Parameters:
//   - v: the validator
//
// Returns:
//   - ShaderModuleCacheBuilderOption: a function that sets the validator
func WithValidator(v Validator) ShaderModuleCacheBuilderOption {
	return func(c *shaderModuleCache) {
		c.validator = v
	}
}

// WithPreProcessor replaces the pre-processor.
//
// Parameters:
//   - pp: the pre-processor
//
// Returns:
//   - ShaderModuleCacheBuilderOption: a function that sets the pre-processor
func WithPreProcessor(pp PreProcessor) ShaderModuleCacheBuilderOption {
	return func(c *shaderModuleCache) {
		c.pp = pp
	}
}

// WithSources registers sources up front, keyed by name.
//
// Parameters:
//   - sources: WGSL text keyed by source name
//
// Returns:
//   - ShaderModuleCacheBuilderOption: a function that registers the sources
func WithSources(sources map[string]string) ShaderModuleCacheBuilderOption {
	return func(c *shaderModuleCache) {
		for name, code := range sources {
			c.sources[name] = Source{Name: name, Code: code}
		}
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ShaderModuleCacheBuilderOption: a function that sets the logger
func WithLogger(l *log.Logger) ShaderModuleCacheBuilderOption {
	return func(c *shaderModuleCache) {
		c.logger = l
	}
}
