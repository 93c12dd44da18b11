// Package arena owns every GPU object the renderer creates, in two tiers. Shared holds the
// deduplicated, reference-counted objects any scene may use: shader modules, bind group
// layouts, pipelines, samplers and solid-color textures. Scene holds what belongs to one
// scene alone and remembers every shared acquisition it made so it can give them back.
package arena

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/resource_cache"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// ErrTornDown is returned by every operation on a Shared arena after Teardown.
var ErrTornDown = errors.New("arena: shared arena has been torn down")

// Kind names the shared cache a Ref points into.
type Kind int

const (
	KindModule Kind = iota
	KindLayout
	KindPipeline
	KindSampler
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindLayout:
		return "layout"
	case KindPipeline:
		return "pipeline"
	case KindSampler:
		return "sampler"
	case KindTexture:
		return "texture"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Ref is one acquisition from a shared cache.
type Ref struct {
	Kind Kind
	Key  descriptor_key.Key
}

// layoutDescriptor is the canonicalized identity of a bind group layout.
type layoutDescriptor struct {
	Entries []wgpu.BindGroupLayoutEntry
}

// solidDescriptor is the canonicalized identity of a solid-color texture.
type solidDescriptor struct {
	RGBA [4]uint8
}

type layoutEntry struct {
	handle *wgpu.BindGroupLayout
}

type shared struct {
	id     string
	mu     *sync.Mutex
	device gpu.Device
	logger *log.Logger

	shaders   shader.ShaderModuleCache
	layouts   resource_cache.ResourceCache[*layoutEntry]
	pipelines resource_cache.ResourceCache[pipeline.Pipeline]
	samplers  resource_cache.ResourceCache[*wgpu.Sampler]
	textures  resource_cache.ResourceCache[*gpu.Texture]

	shaderOptions []shader.ShaderModuleCacheBuilderOption
	scenes        map[string]*scene
	tornDown      bool
}

// Shared is the arena of GPU objects shared between scenes. Every getter acquires one
// reference; callers hand it back with Release, or let a Scene do the bookkeeping.
type Shared interface {
	// ID returns the arena identifier used in logs.
	//
	// Returns:
	//   - string: the identifier
	ID() string

	// Device returns the device objects are created with.
	//
	// Returns:
	//   - gpu.Device: the device
	Device() gpu.Device

	// Shaders returns the shader module cache.
	//
	// Returns:
	//   - shader.ShaderModuleCache: the cache
	Shaders() shader.ShaderModuleCache

	// BindGroupLayout acquires the layout for a list of entries.
	//
	// Parameters:
	//   - entries: the layout entries
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout
	//   - descriptor_key.Key: the key to release
	//   - error: a canonicalization or creation error
	BindGroupLayout(entries []wgpu.BindGroupLayoutEntry) (*wgpu.BindGroupLayout, descriptor_key.Key, error)

	// Pipeline acquires the pipeline for a state. On first use the bind group layouts,
	// the pipeline layout and the pipeline are created, and the modules are told which
	// pipeline references them.
	//
	// Parameters:
	//   - state: the pipeline state; its module keys must match vs and fs
	//   - vs: the vertex module
	//   - fs: the fragment module
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline
	//   - error: a canonicalization or creation error
	Pipeline(state pipeline.State, vs, fs *shader.Module) (pipeline.Pipeline, error)

	// Sampler acquires a sampler. Unset fields take the engine defaults, so spelling the
	// defaults out yields the same sampler.
	//
	// Parameters:
	//   - s: the sampler configuration
	//
	// Returns:
	//   - *wgpu.Sampler: the sampler
	//   - descriptor_key.Key: the key to release
	//   - error: a creation error
	Sampler(s common.SamplerStagingData) (*wgpu.Sampler, descriptor_key.Key, error)

	// SolidTexture acquires a 1x1 RGBA8Unorm texture of a single color.
	//
	// Parameters:
	//   - rgba: the color
	//
	// Returns:
	//   - *gpu.Texture: the texture
	//   - descriptor_key.Key: the key to release
	//   - error: a creation error
	SolidTexture(rgba [4]uint8) (*gpu.Texture, descriptor_key.Key, error)

	// Release gives one acquisition back. Releasing a key that is no longer live is a no-op.
	//
	// Parameters:
	//   - ref: the acquisition
	Release(ref Ref)

	// Invalidate evicts pipelines regardless of their references, after the shader
	// sources they were built from changed.
	//
	// Parameters:
	//   - keys: the pipeline keys
	Invalidate(keys []descriptor_key.Key)

	// NewScene creates an exclusive arena bound to this one.
	//
	// Parameters:
	//   - options: functional options for the scene arena
	//
	// Returns:
	//   - Scene: the scene arena
	NewScene(options ...SceneBuilderOption) Scene

	// Stats returns the activity of every shared cache by label.
	//
	// Returns:
	//   - map[string]resource_cache.Stats: the counters
	Stats() map[string]resource_cache.Stats

	// Teardown releases every scene arena still alive, then destroys the caches in
	// dependency order: pipelines, then layouts and modules, then samplers and textures.
	Teardown()
}

var _ Shared = &shared{}

// NewShared creates a shared arena over device.
//
// Parameters:
//   - device: the device every object is created with
//   - options: functional options for the arena
//
// Returns:
//   - Shared: the arena
func NewShared(device gpu.Device, options ...SharedBuilderOption) Shared {
	if device == nil {
		panic("arena: NewShared requires a device")
	}
	s := &shared{
		id:     uuid.NewString(),
		mu:     &sync.Mutex{},
		device: device,
		logger: logger.For("arena"),
		scenes: make(map[string]*scene),
	}
	for _, opt := range options {
		opt(s)
	}

	s.shaders = shader.NewShaderModuleCache(device, append([]shader.ShaderModuleCacheBuilderOption{shader.WithLogger(s.logger)}, s.shaderOptions...)...)
	s.layouts = resource_cache.NewResourceCache[*layoutEntry]("bind_group_layouts",
		resource_cache.WithReleaser(func(l *layoutEntry) { device.Free(l.handle) }),
		resource_cache.WithLogger[*layoutEntry](s.logger),
	)
	s.pipelines = resource_cache.NewResourceCache[pipeline.Pipeline]("pipelines",
		resource_cache.WithReleaser(s.releasePipeline),
		resource_cache.WithLogger[pipeline.Pipeline](s.logger),
	)
	s.samplers = resource_cache.NewResourceCache[*wgpu.Sampler]("samplers",
		resource_cache.WithFactory(func(descriptor any) (*wgpu.Sampler, error) {
			return device.CreateSampler(descriptor.(common.SamplerStagingData).Descriptor("Shared Sampler"))
		}),
		resource_cache.WithReleaser(func(smp *wgpu.Sampler) { device.Free(smp) }),
		resource_cache.WithLogger[*wgpu.Sampler](s.logger),
	)
	s.textures = resource_cache.NewResourceCache[*gpu.Texture]("solid_textures",
		resource_cache.WithFactory(func(descriptor any) (*gpu.Texture, error) {
			d := descriptor.(solidDescriptor)
			return device.CreateTexture(fmt.Sprintf("Solid %v", d.RGBA), common.SolidColor(d.RGBA), wgpu.TextureFormatRGBA8Unorm)
		}),
		resource_cache.WithReleaser(func(t *gpu.Texture) { device.Free(t) }),
		resource_cache.WithLogger[*gpu.Texture](s.logger),
	)
	return s
}

func (s *shared) ID() string {
	return s.id
}

func (s *shared) Device() gpu.Device {
	return s.device
}

func (s *shared) Shaders() shader.ShaderModuleCache {
	return s.shaders
}

func (s *shared) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrTornDown
	}
	return nil
}

func (s *shared) BindGroupLayout(entries []wgpu.BindGroupLayoutEntry) (*wgpu.BindGroupLayout, descriptor_key.Key, error) {
	if err := s.live(); err != nil {
		return nil, "", err
	}
	key, err := descriptor_key.Canonicalize(layoutDescriptor{Entries: entries})
	if err != nil {
		return nil, "", err
	}
	l, err := s.layouts.GetOrCreate(key, func() (*layoutEntry, error) {
		handle, err := s.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   "Bind Group Layout " + key.Short(),
			Entries: entries,
		})
		if err != nil {
			return nil, err
		}
		return &layoutEntry{handle: handle}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return l.handle, key, nil
}

func (s *shared) Pipeline(state pipeline.State, vs, fs *shader.Module) (pipeline.Pipeline, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if vs == nil || fs == nil {
		return nil, errors.New("arena: pipeline requires vertex and fragment modules")
	}
	if state.VertexModule != vs.Key || state.FragmentModule != fs.Key {
		return nil, fmt.Errorf("arena: pipeline state names modules %s/%s, have %s/%s",
			state.VertexModule.Short(), state.FragmentModule.Short(), vs.Key.Short(), fs.Key.Short())
	}
	key, err := state.Key()
	if err != nil {
		return nil, err
	}
	return s.pipelines.GetOrCreate(key, func() (pipeline.Pipeline, error) {
		return s.createPipeline(key, state, vs, fs)
	})
}

func (s *shared) createPipeline(key descriptor_key.Key, state pipeline.State, vs, fs *shader.Module) (pipeline.Pipeline, error) {
	groupLayouts := make([]*wgpu.BindGroupLayout, 0, len(state.BindGroups))
	groupKeys := make([]descriptor_key.Key, 0, len(state.BindGroups))
	fail := func(err error) (pipeline.Pipeline, error) {
		for _, k := range groupKeys {
			s.layouts.Release(k)
		}
		return nil, fmt.Errorf("pipeline %s: %w", key.Short(), err)
	}

	for _, entries := range state.BindGroups {
		handle, k, err := s.BindGroupLayout(entries)
		if err != nil {
			return fail(err)
		}
		groupLayouts = append(groupLayouts, handle)
		groupKeys = append(groupKeys, k)
	}

	layout, err := s.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            state.Label + " Pipeline Layout",
		BindGroupLayouts: groupLayouts,
	})
	if err != nil {
		return fail(err)
	}
	handle, err := s.device.CreateRenderPipeline(pipeline.Descriptor(state, vs.Handle, fs.Handle, layout))
	if err != nil {
		s.device.Free(layout)
		return fail(err)
	}

	s.shaders.Reference(vs.Key, key)
	if fs.Key != vs.Key {
		s.shaders.Reference(fs.Key, key)
	}
	s.logger.Debug("created pipeline", "key", key.Short(), "label", state.Label, "groups", len(groupLayouts))
	return pipeline.NewPipeline(key, state, handle, layout, groupLayouts, groupKeys), nil
}

func (s *shared) releasePipeline(p pipeline.Pipeline) {
	s.device.Free(p.Handle())
	s.device.Free(p.Layout())
	for _, k := range p.GroupLayoutKeys() {
		s.layouts.Release(k)
	}
}

func (s *shared) Sampler(smp common.SamplerStagingData) (*wgpu.Sampler, descriptor_key.Key, error) {
	if err := s.live(); err != nil {
		return nil, "", err
	}
	return s.samplers.Acquire(smp.WithDefaults())
}

func (s *shared) SolidTexture(rgba [4]uint8) (*gpu.Texture, descriptor_key.Key, error) {
	if err := s.live(); err != nil {
		return nil, "", err
	}
	return s.textures.Acquire(solidDescriptor{RGBA: rgba})
}

func (s *shared) Release(ref Ref) {
	switch ref.Kind {
	case KindModule:
		s.shaders.Release(ref.Key)
	case KindLayout:
		s.layouts.Release(ref.Key)
	case KindPipeline:
		s.pipelines.Release(ref.Key)
	case KindSampler:
		s.samplers.Release(ref.Key)
	case KindTexture:
		s.textures.Release(ref.Key)
	}
}

func (s *shared) Invalidate(keys []descriptor_key.Key) {
	s.mu.Lock()
	scenes := make([]*scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		scenes = append(scenes, sc)
	}
	s.mu.Unlock()

	for _, k := range keys {
		if !s.pipelines.Evict(k) {
			continue
		}
		s.logger.Info("invalidated pipeline", "key", k.Short())
		for _, sc := range scenes {
			sc.forget(Ref{Kind: KindPipeline, Key: k})
		}
	}
}

func (s *shared) NewScene(options ...SceneBuilderOption) Scene {
	sc := newScene(s, options...)
	s.mu.Lock()
	s.scenes[sc.id] = sc
	s.mu.Unlock()
	return sc
}

func (s *shared) forgetScene(id string) {
	s.mu.Lock()
	delete(s.scenes, id)
	s.mu.Unlock()
}

func (s *shared) Stats() map[string]resource_cache.Stats {
	return map[string]resource_cache.Stats{
		"shader_modules":    s.shaders.Stats(),
		s.layouts.Label():   s.layouts.Stats(),
		s.pipelines.Label(): s.pipelines.Stats(),
		s.samplers.Label():  s.samplers.Stats(),
		s.textures.Label():  s.textures.Stats(),
	}
}

func (s *shared) Teardown() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	scenes := make([]*scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		scenes = append(scenes, sc)
	}
	s.mu.Unlock()

	for _, sc := range scenes {
		s.logger.Warn("releasing scene arena still alive at teardown", "scene", sc.id)
		sc.Release()
	}

	s.mu.Lock()
	s.tornDown = true
	s.mu.Unlock()

	s.pipelines.Teardown()
	s.layouts.Teardown()
	s.shaders.Teardown()
	s.samplers.Teardown()
	s.textures.Teardown()
	s.logger.Debug("shared arena torn down", "id", s.id)
}
