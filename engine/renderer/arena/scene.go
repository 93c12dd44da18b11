package arena

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// ErrReleased is returned by every operation on a Scene after Release.
var ErrReleased = errors.New("arena: scene arena has been released")

// SceneStats counts what a scene arena holds.
type SceneStats struct {
	Materials       int
	GeometryBuffers int
	Images          int
	SharedRefs      int
}

type scene struct {
	id     string
	label  string
	mu     *sync.Mutex
	shared *shared
	logger *log.Logger

	// refs holds one acquisition per shared key, in acquisition order.
	refs []Ref
	held map[Ref]bool

	globals     bind_group_provider.BindGroupProvider
	globalsDeps []Ref
	materials   map[descriptor_key.Key]bind_group_provider.BindGroupProvider
	geometry    map[string]*wgpu.Buffer
	// images are material textures uploaded once per source
	images   map[string]*gpu.Texture
	released bool

	// gen is the build generation opened by Mark; Sweep frees whatever it did not touch.
	gen       uint64
	used      map[Ref]uint64
	matUsed   map[descriptor_key.Key]uint64
	matDeps   map[descriptor_key.Key]materialDeps
	geomUsed  map[string]uint64
	imageUsed map[string]uint64
}

// materialDeps is what a material bind group borrows from the arena.
type materialDeps struct {
	refs   []Ref
	images []string
}

// Scene is the exclusive arena of one scene. Objects it creates itself (material bind
// groups and their uniform buffers and textures, the globals group, geometry buffers)
// are never shared. Shared objects it requests are acquired from its Shared arena and
// held once per key until Release.
type Scene interface {
	// ID returns the arena identifier.
	//
	// Returns:
	//   - string: the identifier
	ID() string

	// Shared returns the shared arena the scene draws from.
	//
	// Returns:
	//   - Shared: the shared arena
	Shared() Shared

	// Module acquires a shader module through the shared arena.
	//
	// Parameters:
	//   - name: the registered source name
	//   - ctx: the compile context
	//
	// Returns:
	//   - *shader.Module: the module
	//   - error: a shader error or ErrReleased
	Module(name string, ctx shader.Context) (*shader.Module, error)

	// Pipeline acquires a pipeline through the shared arena.
	//
	// Parameters:
	//   - state: the pipeline state
	//   - vs: the vertex module
	//   - fs: the fragment module
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline
	//   - error: a creation error or ErrReleased
	Pipeline(state pipeline.State, vs, fs *shader.Module) (pipeline.Pipeline, error)

	// Globals returns the per-scene globals group, creating it on first use.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the globals group
	//   - error: a creation error or ErrReleased
	Globals() (bind_group_provider.BindGroupProvider, error)

	// WriteGlobals uploads the per-scene globals.
	//
	// Parameters:
	//   - g: the globals
	//
	// Returns:
	//   - error: a creation or write error
	WriteGlobals(g material.GPUGlobals) error

	// MaterialBindGroup returns the bind group of a built material, creating it on first
	// use. Materials with the same key share one bind group.
	//
	// Parameters:
	//   - build: the material build
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the material group
	//   - error: a texture format mismatch, a creation error or ErrReleased
	MaterialBindGroup(build *material.Build) (bind_group_provider.BindGroupProvider, error)

	// ReleaseMaterials frees every material bind group so the next request rebuilds it.
	ReleaseMaterials()

	// GeometryBuffer returns the GPU copy of a mesh buffer, uploading it on first use.
	//
	// Parameters:
	//   - buf: the mesh buffer
	//
	// Returns:
	//   - *wgpu.Buffer: the vertex and index buffer
	//   - error: a creation or write error, or ErrReleased
	GeometryBuffer(buf *mesh.Buffer) (*wgpu.Buffer, error)

	// Mark opens a build generation. Everything requested until the matching Sweep is
	// recorded as in use.
	Mark()

	// Sweep frees the material bind groups, images and geometry buffers not requested since
	// Mark, and gives back the shared acquisitions no longer in use. Call it once the
	// objects built before Mark are no longer drawn.
	Sweep()

	// Refs returns the shared acquisitions held by the scene in acquisition order.
	//
	// Returns:
	//   - []Ref: the acquisitions
	Refs() []Ref

	// Stats returns what the arena holds.
	//
	// Returns:
	//   - SceneStats: the counts
	Stats() SceneStats

	// Release frees the scene's own objects, then gives back every shared acquisition.
	// Calling Release more than once is a no-op.
	Release()
}

var _ Scene = &scene{}

func newScene(s *shared, options ...SceneBuilderOption) *scene {
	sc := &scene{
		id:        uuid.NewString(),
		mu:        &sync.Mutex{},
		shared:    s,
		logger:    s.logger,
		held:      make(map[Ref]bool),
		materials: make(map[descriptor_key.Key]bind_group_provider.BindGroupProvider),
		geometry:  make(map[string]*wgpu.Buffer),
		images:    make(map[string]*gpu.Texture),
		used:      make(map[Ref]uint64),
		matUsed:   make(map[descriptor_key.Key]uint64),
		matDeps:   make(map[descriptor_key.Key]materialDeps),
		geomUsed:  make(map[string]uint64),
		imageUsed: make(map[string]uint64),
	}
	for _, opt := range options {
		opt(sc)
	}
	if sc.label == "" {
		sc.label = "scene " + sc.id[:8]
	}
	return sc
}

func (sc *scene) ID() string {
	return sc.id
}

func (sc *scene) Shared() Shared {
	return sc.shared
}

func (sc *scene) live() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return ErrReleased
	}
	return nil
}

// hold records an acquisition. The scene keeps one reference per key, so a repeated
// acquisition is handed straight back.
func (sc *scene) hold(ref Ref) {
	sc.mu.Lock()
	if sc.released {
		sc.mu.Unlock()
		sc.shared.Release(ref)
		return
	}
	sc.used[ref] = sc.gen
	if sc.held[ref] {
		sc.mu.Unlock()
		sc.shared.Release(ref)
		return
	}
	sc.held[ref] = true
	sc.refs = append(sc.refs, ref)
	sc.mu.Unlock()
}

// forget drops ref without releasing it, after the shared entry was evicted.
func (sc *scene) forget(ref Ref) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.held[ref] {
		return
	}
	delete(sc.held, ref)
	delete(sc.used, ref)
	sc.refs = slices.DeleteFunc(sc.refs, func(r Ref) bool { return r == ref })
}

func (sc *scene) Module(name string, ctx shader.Context) (*shader.Module, error) {
	if err := sc.live(); err != nil {
		return nil, err
	}
	m, err := sc.shared.shaders.Module(name, ctx)
	if err != nil {
		return nil, err
	}
	sc.hold(Ref{Kind: KindModule, Key: m.Key})
	return m, nil
}

func (sc *scene) Pipeline(state pipeline.State, vs, fs *shader.Module) (pipeline.Pipeline, error) {
	if err := sc.live(); err != nil {
		return nil, err
	}
	p, err := sc.shared.Pipeline(state, vs, fs)
	if err != nil {
		return nil, err
	}
	sc.hold(Ref{Kind: KindPipeline, Key: p.Key()})
	return p, nil
}

func (sc *scene) layout(entries []wgpu.BindGroupLayoutEntry) (*wgpu.BindGroupLayout, Ref, error) {
	l, key, err := sc.shared.BindGroupLayout(entries)
	if err != nil {
		return nil, Ref{}, err
	}
	ref := Ref{Kind: KindLayout, Key: key}
	sc.hold(ref)
	return l, ref, nil
}

func (sc *scene) Globals() (bind_group_provider.BindGroupProvider, error) {
	if err := sc.live(); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	g := sc.globals
	sc.mu.Unlock()
	if g != nil {
		return g, nil
	}

	entries := material.GlobalsEntries()
	layout, ref, err := sc.layout(entries)
	if err != nil {
		return nil, err
	}
	g = bind_group_provider.NewBindGroupProvider(sc.label + " Globals")
	if err := g.Init(sc.shared.device, layout, entries); err != nil {
		return nil, fmt.Errorf("%s globals: %w", sc.label, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.globals != nil {
		g.Release(sc.shared.device)
		return sc.globals, nil
	}
	sc.globals = g
	sc.globalsDeps = []Ref{ref}
	return g, nil
}

func (sc *scene) WriteGlobals(globals material.GPUGlobals) error {
	g, err := sc.Globals()
	if err != nil {
		return err
	}
	return g.Write(sc.shared.device, 0, 0, globals.Marshal())
}

func (sc *scene) MaterialBindGroup(build *material.Build) (bind_group_provider.BindGroupProvider, error) {
	if err := sc.live(); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	p, ok := sc.materials[build.Key]
	if ok {
		sc.touchMaterial(build.Key)
	}
	sc.mu.Unlock()
	if ok {
		return p, nil
	}

	layout, layoutRef, err := sc.layout(build.Entries)
	if err != nil {
		return nil, err
	}
	deps := materialDeps{refs: []Ref{layoutRef}}

	device := sc.shared.device
	label := sc.label + " Material " + build.Key.Short()
	options := []bind_group_provider.BindGroupProviderOption{
		bind_group_provider.WithData(material.BindingParams, build.Uniform),
	}
	created := make([]func(), 0, len(build.Slots))
	cleanup := func() {
		for _, free := range created {
			free()
		}
	}

	for _, slot := range build.Slots {
		if slot.HasImage() {
			format := wgpu.TextureFormatRGBA8Unorm
			if slot.TextureBinding == material.BindingBaseColorTexture {
				format = wgpu.TextureFormatRGBA8UnormSrgb
			}
			texLabel := fmt.Sprintf("%s Texture %d", label, slot.TextureBinding)
			if slot.Texture.Source == "" {
				tex, err := device.CreateTexture(texLabel, slot.Staging(), format)
				if err != nil {
					cleanup()
					return nil, fmt.Errorf("%s: %w", label, err)
				}
				created = append(created, func() { device.Free(tex) })
				options = append(options, bind_group_provider.WithTexture(int(slot.TextureBinding), tex, true))
			} else {
				tex, key, err := sc.image(texLabel, slot, format)
				if err != nil {
					cleanup()
					return nil, fmt.Errorf("%s: %w", label, err)
				}
				deps.images = append(deps.images, key)
				options = append(options, bind_group_provider.WithTexture(int(slot.TextureBinding), tex, false))
			}
		} else {
			tex, key, err := sc.shared.SolidTexture(slot.Fallback)
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			ref := Ref{Kind: KindTexture, Key: key}
			sc.hold(ref)
			deps.refs = append(deps.refs, ref)
			options = append(options, bind_group_provider.WithTexture(int(slot.TextureBinding), tex, false))
		}

		smp, key, err := sc.shared.Sampler(slot.Sampler())
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		ref := Ref{Kind: KindSampler, Key: key}
		sc.hold(ref)
		deps.refs = append(deps.refs, ref)
		options = append(options, bind_group_provider.WithSampler(int(slot.SamplerBinding), smp))
	}

	p = bind_group_provider.NewBindGroupProvider(label, options...)
	if err := p.Init(device, layout, build.Entries); err != nil {
		cleanup()
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.materials[build.Key]; ok {
		p.Release(device)
		sc.touchMaterial(build.Key)
		return existing, nil
	}
	sc.materials[build.Key] = p
	sc.matDeps[build.Key] = deps
	sc.touchMaterial(build.Key)
	sc.logger.Debug("created material bind group", "scene", sc.label, "material", build.Key.Short())
	return p, nil
}

// touchMaterial records a material group and what it borrows as used. Callers hold mu.
func (sc *scene) touchMaterial(key descriptor_key.Key) {
	sc.matUsed[key] = sc.gen
	deps := sc.matDeps[key]
	for _, r := range deps.refs {
		sc.used[r] = sc.gen
	}
	for _, k := range deps.images {
		sc.imageUsed[k] = sc.gen
	}
}

// image returns the upload of a sourced material texture, shared by every material of the
// scene naming the same source.
func (sc *scene) image(label string, slot material.TextureSlot, format wgpu.TextureFormat) (*gpu.Texture, string, error) {
	key := fmt.Sprintf("%s|%d", slot.Texture.Source, format)
	sc.mu.Lock()
	tex, ok := sc.images[key]
	if ok {
		sc.imageUsed[key] = sc.gen
	}
	sc.mu.Unlock()
	if ok {
		return tex, key, nil
	}

	device := sc.shared.device
	tex, err := device.CreateTexture(label, slot.Staging(), format)
	if err != nil {
		return nil, "", err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.images[key]; ok {
		device.Free(tex)
		sc.imageUsed[key] = sc.gen
		return existing, key, nil
	}
	sc.images[key] = tex
	sc.imageUsed[key] = sc.gen
	return tex, key, nil
}

func (sc *scene) ReleaseMaterials() {
	sc.mu.Lock()
	materials := sc.materials
	sc.materials = make(map[descriptor_key.Key]bind_group_provider.BindGroupProvider)
	clear(sc.matUsed)
	clear(sc.matDeps)
	sc.mu.Unlock()
	for _, p := range materials {
		p.Release(sc.shared.device)
	}
}

func (sc *scene) GeometryBuffer(buf *mesh.Buffer) (*wgpu.Buffer, error) {
	if err := sc.live(); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	b, ok := sc.geometry[buf.ID]
	if ok {
		sc.geomUsed[buf.ID] = sc.gen
	}
	sc.mu.Unlock()
	if ok {
		return b, nil
	}

	size := (uint64(len(buf.Data)) + 3) &^ 3
	if size == 0 {
		return nil, fmt.Errorf("arena: geometry buffer %s is empty", buf.ID)
	}
	device := sc.shared.device
	b, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: sc.label + " Geometry " + buf.ID[:min(8, len(buf.ID))],
		Size:  size,
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	data := buf.Data
	if uint64(len(data)) != size {
		data = make([]byte, size)
		copy(data, buf.Data)
	}
	if err := device.WriteBuffer(b, 0, data); err != nil {
		device.Free(b)
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.geomUsed[buf.ID] = sc.gen
	if existing, ok := sc.geometry[buf.ID]; ok {
		device.Free(b)
		return existing, nil
	}
	sc.geometry[buf.ID] = b
	return b, nil
}

func (sc *scene) Mark() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gen++
}

func (sc *scene) Sweep() {
	sc.mu.Lock()
	if sc.released {
		sc.mu.Unlock()
		return
	}
	gen := sc.gen

	var materials []bind_group_provider.BindGroupProvider
	for k, p := range sc.materials {
		if sc.matUsed[k] != gen {
			materials = append(materials, p)
			delete(sc.materials, k)
			delete(sc.matUsed, k)
			delete(sc.matDeps, k)
		}
	}
	var images []*gpu.Texture
	for k, tex := range sc.images {
		if sc.imageUsed[k] != gen {
			images = append(images, tex)
			delete(sc.images, k)
			delete(sc.imageUsed, k)
		}
	}
	var geometry []*wgpu.Buffer
	for id, b := range sc.geometry {
		if sc.geomUsed[id] != gen {
			geometry = append(geometry, b)
			delete(sc.geometry, id)
			delete(sc.geomUsed, id)
		}
	}

	var released []Ref
	kept := make([]Ref, 0, len(sc.refs))
	for _, r := range sc.refs {
		if sc.used[r] == gen || slices.Contains(sc.globalsDeps, r) {
			kept = append(kept, r)
			continue
		}
		released = append(released, r)
		delete(sc.held, r)
		delete(sc.used, r)
	}
	sc.refs = kept
	sc.mu.Unlock()

	device := sc.shared.device
	for _, p := range materials {
		p.Release(device)
	}
	for _, tex := range images {
		device.Free(tex)
	}
	for _, b := range geometry {
		device.Free(b)
	}
	for i := len(released) - 1; i >= 0; i-- {
		sc.shared.Release(released[i])
	}
	if n := len(materials) + len(images) + len(geometry) + len(released); n > 0 {
		sc.logger.Debug("swept scene arena", "scene", sc.label, "materials", len(materials),
			"images", len(images), "geometry", len(geometry), "refs", len(released))
	}
}

func (sc *scene) Refs() []Ref {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return slices.Clone(sc.refs)
}

func (sc *scene) Stats() SceneStats {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return SceneStats{
		Materials:       len(sc.materials),
		GeometryBuffers: len(sc.geometry),
		Images:          len(sc.images),
		SharedRefs:      len(sc.refs),
	}
}

func (sc *scene) Release() {
	sc.mu.Lock()
	if sc.released {
		sc.mu.Unlock()
		return
	}
	sc.released = true
	globals := sc.globals
	materials := sc.materials
	geometry := sc.geometry
	images := sc.images
	refs := sc.refs
	sc.globals = nil
	sc.materials = nil
	sc.geometry = nil
	sc.images = nil
	sc.refs = nil
	sc.held = nil
	sc.mu.Unlock()

	device := sc.shared.device
	for _, p := range materials {
		p.Release(device)
	}
	if globals != nil {
		globals.Release(device)
	}
	for _, tex := range images {
		device.Free(tex)
	}
	for _, b := range geometry {
		device.Free(b)
	}
	for i := len(refs) - 1; i >= 0; i-- {
		sc.shared.Release(refs[i])
	}
	sc.shared.forgetScene(sc.id)
	sc.logger.Debug("scene arena released", "scene", sc.label, "refs", len(refs))
}
