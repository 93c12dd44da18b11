package shader

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/resource_cache"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrUnknownSource is returned when a module is requested for a source name that was never registered.
var ErrUnknownSource = errors.New("shader: unknown source")

// Compiler turns WGSL into shader modules. gpu.Device satisfies it.
type Compiler interface {
	CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error)
	Free(obj gpu.Releasable)
}

// Module is a compiled shader module together with the exact WGSL it was built from.
type Module struct {
	// Key is the cache key of (source, context).
	Key descriptor_key.Key
	// Name is the registered source name.
	Name string
	// Code is the pre-processed WGSL handed to the compiler.
	Code string
	// Handle is the GPU module.
	Handle *wgpu.ShaderModule
}

// moduleDescriptor is the canonicalized identity of a module. Values are listed as
// bindings so a value bound to zero stays distinct from an unbound one.
type moduleDescriptor struct {
	Source Source
	Flags  []string
	Values []valueBinding
}

type valueBinding struct {
	Name  string
	Value int
}

func describe(src Source, ctx Context) moduleDescriptor {
	d := moduleDescriptor{Source: src, Flags: ctx.EnabledFlags()}
	for _, name := range slices.Sorted(maps.Keys(ctx.Values)) {
		d.Values = append(d.Values, valueBinding{Name: name, Value: ctx.Values[name]})
	}
	return d
}

// shaderModuleCache is the implementation of the ShaderModuleCache interface.
type shaderModuleCache struct {
	mu        *sync.Mutex
	compiler  Compiler
	pp        PreProcessor
	validator Validator
	logger    *log.Logger

	cache   resource_cache.ResourceCache[*Module]
	sources map[string]Source
	// built maps a source name to the module keys compiled from it.
	built map[string][]descriptor_key.Key
	// pipelines maps a module key to the pipeline keys that reference it, in reference order.
	pipelines map[descriptor_key.Key][]descriptor_key.Key
}

// ShaderModuleCache compiles each distinct (source, context) pair exactly once and tracks
// which pipelines were built from each module, so a source edit can name the pipelines
// that must be rebuilt.
type ShaderModuleCache interface {
	// Register adds or replaces a named source without touching modules already built from it.
	// Use UpdateSource to replace text that is in use.
	//
	// Parameters:
	//   - name: the source name
	//   - code: raw WGSL, may contain pre-processor directives
	Register(name, code string)

	// Source returns the registered source for name.
	//
	// Parameters:
	//   - name: the source name
	//
	// Returns:
	//   - Source: the source
	//   - bool: true if registered
	Source(name string) (Source, bool)

	// Module acquires the module for the named source under ctx, compiling it on first use.
	// The source is pre-processed with ctx and validated before compilation.
	//
	// Parameters:
	//   - name: the registered source name
	//   - ctx: the compile context
	//
	// Returns:
	//   - *Module: the shared module
	//   - error: ErrUnknownSource, a pre-processor or validation error, or a compile error
	Module(name string, ctx Context) (*Module, error)

	// Release drops one acquisition of a module.
	//
	// Parameters:
	//   - key: the module key
	Release(key descriptor_key.Key)

	// Reference records that pipelineKey was built from the module under moduleKey.
	//
	// Parameters:
	//   - moduleKey: the module key
	//   - pipelineKey: the pipeline key
	Reference(moduleKey, pipelineKey descriptor_key.Key)

	// Pipelines returns the pipeline keys that reference a module.
	//
	// Parameters:
	//   - moduleKey: the module key
	//
	// Returns:
	//   - []descriptor_key.Key: the pipeline keys in reference order
	Pipelines(moduleKey descriptor_key.Key) []descriptor_key.Key

	// UpdateSource replaces the text of a registered source and evicts every module built
	// from the previous text. Identical text is a no-op.
	//
	// Parameters:
	//   - name: the source name
	//   - code: the new raw WGSL
	//
	// Returns:
	//   - []descriptor_key.Key: the pipeline keys that referenced an evicted module
	UpdateSource(name, code string) []descriptor_key.Key

	// Stats returns the module cache counters.
	//
	// Returns:
	//   - resource_cache.Stats: the counters
	Stats() resource_cache.Stats

	// Teardown releases every module. The cache is unusable afterwards.
	Teardown()
}

var _ ShaderModuleCache = &shaderModuleCache{}

// NewShaderModuleCache creates a module cache compiling through compiler. Sources are
// validated with NagaValidator unless WithValidator overrides it.
//
// Parameters:
//   - compiler: the module compiler, usually a gpu.Device
//   - options: functional options
//
// Returns:
//   - ShaderModuleCache: the new cache
func NewShaderModuleCache(compiler Compiler, options ...ShaderModuleCacheBuilderOption) ShaderModuleCache {
	if compiler == nil {
		panic("shader: NewShaderModuleCache requires a compiler")
	}
	c := &shaderModuleCache{
		mu:        &sync.Mutex{},
		compiler:  compiler,
		pp:        NewPreProcessor(),
		validator: NagaValidator,
		logger:    logger.For("shader"),
		sources:   make(map[string]Source),
		built:     make(map[string][]descriptor_key.Key),
		pipelines: make(map[descriptor_key.Key][]descriptor_key.Key),
	}
	for _, opt := range options {
		opt(c)
	}
	c.cache = resource_cache.NewResourceCache[*Module]("shader_modules",
		resource_cache.WithReleaser(func(m *Module) {
			c.compiler.Free(m.Handle)
		}),
		resource_cache.WithLogger[*Module](c.logger),
	)
	return c
}

func (c *shaderModuleCache) Register(name, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = Source{Name: name, Code: code}
}

func (c *shaderModuleCache) Source(name string) (Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	src, ok := c.sources[name]
	return src, ok
}

func (c *shaderModuleCache) Module(name string, ctx Context) (*Module, error) {
	c.mu.Lock()
	src, ok := c.sources[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	key, err := descriptor_key.Canonicalize(describe(src, ctx))
	if err != nil {
		return nil, err
	}

	return c.cache.GetOrCreate(key, func() (*Module, error) {
		code, err := c.pp.Process(src.Code, ctx)
		if err != nil {
			return nil, fmt.Errorf("shader %q: %w", name, err)
		}
		if c.validator != nil {
			if err := c.validator(name, code); err != nil {
				return nil, err
			}
		}
		handle, err := c.compiler.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label: name,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: code,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("shader %q: %w", name, err)
		}

		c.mu.Lock()
		c.built[name] = append(c.built[name], key)
		c.mu.Unlock()

		c.logger.Debug("compiled module", "source", name, "flags", ctx.EnabledFlags(), "key", key.Short())
		return &Module{Key: key, Name: name, Code: code, Handle: handle}, nil
	})
}

func (c *shaderModuleCache) Release(key descriptor_key.Key) {
	if c.cache.Release(key) {
		c.forget(key)
	}
}

func (c *shaderModuleCache) Reference(moduleKey, pipelineKey descriptor_key.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.pipelines[moduleKey] {
		if k == pipelineKey {
			return
		}
	}
	c.pipelines[moduleKey] = append(c.pipelines[moduleKey], pipelineKey)
}

func (c *shaderModuleCache) Pipelines(moduleKey descriptor_key.Key) []descriptor_key.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]descriptor_key.Key(nil), c.pipelines[moduleKey]...)
}

func (c *shaderModuleCache) UpdateSource(name, code string) []descriptor_key.Key {
	c.mu.Lock()
	if src, ok := c.sources[name]; ok && src.Code == code {
		c.mu.Unlock()
		return nil
	}
	c.sources[name] = Source{Name: name, Code: code}
	stale := c.built[name]
	delete(c.built, name)

	var affected []descriptor_key.Key
	seen := make(map[descriptor_key.Key]bool)
	for _, mk := range stale {
		for _, pk := range c.pipelines[mk] {
			if !seen[pk] {
				seen[pk] = true
				affected = append(affected, pk)
			}
		}
		delete(c.pipelines, mk)
	}
	c.mu.Unlock()

	for _, mk := range stale {
		c.cache.Evict(mk)
	}
	c.logger.Info("source updated", "source", name, "modules", len(stale), "pipelines", len(affected))
	return affected
}

func (c *shaderModuleCache) Stats() resource_cache.Stats {
	return c.cache.Stats()
}

func (c *shaderModuleCache) Teardown() {
	c.cache.Teardown()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.built = make(map[string][]descriptor_key.Key)
	c.pipelines = make(map[descriptor_key.Key][]descriptor_key.Key)
}

// forget drops the bookkeeping for a module that left the cache.
func (c *shaderModuleCache) forget(key descriptor_key.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pipelines, key)
	for name, keys := range c.built {
		for i, k := range keys {
			if k == key {
				c.built[name] = append(keys[:i], keys[i+1:]...)
				break
			}
		}
	}
}
