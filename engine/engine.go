package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/profiler"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-instancer/engine/scene"
	"github.com/Carmen-Shannon/oxy-instancer/engine/window"
	"github.com/charmbracelet/log"
)

// engine implements the Engine interface.
// Coordinates the tick goroutine, the render goroutine and the window loop.
type engine struct {
	mu     *sync.RWMutex
	logger *log.Logger

	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	window   window.Window
	renderer renderer.Renderer
	shared   arena.Shared
	watcher  shader.Watcher

	profiler         *profiler.Profiler
	profilerOpts     []profiler.ProfilerBuilderOption
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenes map[int]scene.Scene

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	closed           bool
}

// Engine is the main entry point for the engine.
// It owns the renderer and the shared arena, drives the scenes registered with it,
// and runs the tick, render and window loops.
type Engine interface {
	// Window returns the underlying window, or nil when the engine runs headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer frames are drawn with.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Shared returns the arena shared by every scene of the engine.
	//
	// Returns:
	//   - arena.Shared: the shared arena
	Shared() arena.Shared

	// EnableProfiler enables frame statistics in the log.
	EnableProfiler()

	// DisableProfiler disables frame statistics.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic and input handling; scene edits made here are applied by
	// the next frame's Update.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each presented frame.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key.
	// Scenes are drawn in ascending key order into the same pass.
	//
	// Parameters:
	//   - key: the z-index determining draw order (lower draws first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene unregisters the scene at the given z-index key. The scene is not released.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key, or nil.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Frame runs one frame: apply shader reloads, update every scene, draw them into one
	// pass, then present.
	//
	// Returns:
	//   - frame.Stats: the commands recorded
	//   - error: a frame acquisition or submission error; scene update errors are logged
	Frame() (frame.Stats, error)

	// Run starts the engine loops and blocks until the window closes or Quit is called.
	Run()

	// Quit signals all engine goroutines to stop. Safe to call multiple times.
	Quit()

	// Close releases every scene, the shared arena, the shader watcher, the renderer and
	// the window, in that order. Call it after Run returns.
	//
	// Returns:
	//   - error: joined watcher and window errors
	Close() error
}

var _ Engine = &engine{}

// NewEngine creates a new Engine drawing with r through the shared arena.
// It panics if either is nil.
//
// Parameters:
//   - r: the renderer
//   - shared: the shared arena, created on r.Device()
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(r renderer.Renderer, shared arena.Shared, options ...EngineBuilderOption) Engine {
	if r == nil {
		panic("engine: NewEngine requires a renderer")
	}
	if shared == nil {
		panic("engine: NewEngine requires a shared arena")
	}
	e := &engine{
		mu:              &sync.RWMutex{},
		logger:          logger.For("engine"),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		renderer:        r,
		shared:          shared,
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(e.profilerOpts...)

	if e.window != nil {
		e.window.SetResizeCallback(e.resize)
	}
	return e
}

func (e *engine) resize(width, height int) {
	if err := e.renderer.Resize(width, height); err != nil {
		e.logger.Error("resize failed", "width", width, "height", height, "err", err)
	}
	if width <= 0 || height <= 0 {
		return
	}
	for _, s := range e.sortedScenes() {
		s.Camera().SetAspect(float32(width) / float32(height))
	}
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Shared() arena.Shared {
	return e.shared
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.handle()
	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				// Quit from another goroutine; GLFW must be closed from this one
				if err := e.window.Close(); err != nil {
					e.logger.Error("close window", "err", err)
				}
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
	})
}

// handle launches the engine, render and quit goroutines.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate tick loop and listens for tick rate changes.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the render loop until quit. A panic stops the engine instead of the process.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if _, err := e.Frame(); err != nil && !errors.Is(err, renderer.ErrFrameInFlight) {
			e.logger.Warn("frame dropped", "err", err)
		}
		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) Frame() (frame.Stats, error) {
	var stats frame.Stats
	scenes := e.sortedScenes()

	e.applyReloads(scenes)
	for _, s := range scenes {
		if err := s.Update(); err != nil {
			e.logger.Error("scene update failed", "scene", s.Name(), "err", err)
		}
	}

	pass, err := e.renderer.BeginFrame()
	if err != nil {
		return stats, err
	}
	for _, s := range scenes {
		stats = stats.Add(s.Draw(pass))
	}
	if err := e.renderer.EndFrame(); err != nil {
		return stats, err
	}
	e.renderer.Present()

	e.mu.RLock()
	profiling := e.profilingEnabled
	e.mu.RUnlock()
	if profiling {
		e.profiler.Tick(stats)
	}
	return stats, nil
}

// applyReloads drains the shader watcher. Pipelines built from a changed source are evicted
// from the shared arena and every scene re-resolves its render order.
func (e *engine) applyReloads(scenes []scene.Scene) {
	if e.watcher == nil {
		return
	}
	reload, err := e.watcher.Poll()
	if err != nil {
		e.logger.Warn("shader reload", "err", err)
	}
	if reload.Empty() {
		return
	}
	e.shared.Invalidate(reload.Pipelines)
	reason := fmt.Sprintf("shader reload: %v", reload.Sources)
	for _, s := range scenes {
		s.OnChange(scene.Change{Stages: []scene.BuildStage{scene.StageRenderOrder}, Reason: reason})
	}
}

func (e *engine) sortedScenes() []scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(e.scenes))
	out := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.scenes[k])
	}
	return out
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate applies immediately when the engine is running.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		e.engineTickRate = newRate
		return
	}
	// replace a pending update rather than block
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.scenes)
}

func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	scenes := e.scenes
	e.scenes = make(map[int]scene.Scene)
	e.mu.Unlock()

	for _, s := range scenes {
		s.Release()
	}
	e.shared.Teardown()

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	e.renderer.Release()
	if e.window != nil {
		errs = append(errs, e.window.Close())
	}
	return errors.Join(errs...)
}
