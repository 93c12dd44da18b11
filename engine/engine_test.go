package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-instancer/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
)

type fakeRenderer struct {
	mu       sync.Mutex
	device   *gputest.Device
	pass     *gputest.Pass
	beginErr error

	begins, ends, presents, releases int
	width, height                    int
}

var _ renderer.Renderer = &fakeRenderer{}

func (r *fakeRenderer) Device() gpu.Device { return r.device }

func (r *fakeRenderer) Target() renderer.Target {
	return renderer.Target{Color: wgpu.TextureFormatBGRA8Unorm, Depth: wgpu.TextureFormatDepth24Plus, Samples: 1}
}

func (r *fakeRenderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
	return nil
}

func (r *fakeRenderer) SetPresentMode(renderer.PresentMode) error { return nil }

func (r *fakeRenderer) BeginFrame() (frame.PassEncoder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	r.begins++
	r.pass.Reset()
	return r.pass, nil
}

func (r *fakeRenderer) EndFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends++
	return nil
}

func (r *fakeRenderer) Present() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presents++
}

func (r *fakeRenderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
}

type fakeWatcher struct {
	next   shader.Reload
	closed int
}

func (w *fakeWatcher) Poll() (shader.Reload, error) {
	r := w.next
	w.next = shader.Reload{}
	return r, nil
}

func (w *fakeWatcher) Close() error {
	w.closed++
	return nil
}

func newTestEngine(t *testing.T, options ...EngineBuilderOption) (*fakeRenderer, arena.Shared, Engine) {
	t.Helper()
	r := &fakeRenderer{device: gputest.NewDevice(), pass: gputest.NewPass()}
	shared := arena.NewShared(r.device, arena.WithShaderOptions(
		shader.WithValidator(nil),
		shader.WithSources(material.Sources()),
	))
	return r, shared, NewEngine(r, shared, options...)
}

func gridScene(shared arena.Shared, name string, n int) scene.Scene {
	cube := mesh.Cube(1, material.NewMaterial())
	return scene.NewScene(shared, scene.WithName(name), scene.WithRoot(scene.Grid(n, 2, cube)))
}

func TestNewEnginePanicsWithoutDeps(t *testing.T) {
	r := &fakeRenderer{device: gputest.NewDevice(), pass: gputest.NewPass()}
	shared := arena.NewShared(r.device)
	defer shared.Teardown()

	tests := []struct {
		name   string
		r      renderer.Renderer
		shared arena.Shared
	}{
		{"renderer", nil, shared},
		{"arena", r, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("NewEngine did not panic")
				}
			}()
			NewEngine(tt.r, tt.shared)
		})
	}
}

func TestFrameDrawsScenesInKeyOrder(t *testing.T) {
	r, shared, e := newTestEngine(t)
	defer e.Close()

	e.AddScene(2, gridScene(shared, "front", 4))
	e.AddScene(1, gridScene(shared, "back", 9))

	stats, err := e.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if stats.Draws != 2 || stats.Instances != 13 {
		t.Fatalf("stats: %+v", stats)
	}
	if r.begins != 1 || r.ends != 1 || r.presents != 1 {
		t.Fatalf("begin/end/present = %d/%d/%d, want 1/1/1", r.begins, r.ends, r.presents)
	}

	var instances []uint32
	for _, c := range r.pass.Calls {
		if c.Op == "DrawIndexed" {
			instances = append(instances, c.Args[1].(uint32))
		}
	}
	if len(instances) != 2 || instances[0] != 9 || instances[1] != 4 {
		t.Fatalf("drawn instance counts %v, want [9 4]", instances)
	}
}

func TestFrameReturnsBeginError(t *testing.T) {
	r, shared, e := newTestEngine(t)
	defer e.Close()
	e.AddScene(0, gridScene(shared, "grid", 4))

	r.beginErr = renderer.ErrFrameInFlight
	if _, err := e.Frame(); !errors.Is(err, renderer.ErrFrameInFlight) {
		t.Fatalf("Frame error = %v, want ErrFrameInFlight", err)
	}
	if r.presents != 0 {
		t.Fatal("a frame was presented after BeginFrame failed")
	}

	// the scene was still built and draws once the surface is back
	r.beginErr = nil
	stats, err := e.Frame()
	if err != nil || stats.Instances != 4 {
		t.Fatalf("Frame = %+v, %v", stats, err)
	}
}

func TestShaderReloadRebuildsOrder(t *testing.T) {
	w := &fakeWatcher{}
	r, shared, e := newTestEngine(t, WithShaderWatcher(w))
	s := gridScene(shared, "grid", 4)
	e.AddScene(0, s)

	if _, err := e.Frame(); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	before := s.Order()
	created := r.device.Created(gputest.KindRenderPipeline)

	w.next = shader.Reload{
		Sources:   []string{"standard"},
		Pipelines: []descriptor_key.Key{before.Pipelines[0].Key},
	}
	stats, err := e.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if s.Order() == before {
		t.Fatal("render order was not rebuilt")
	}
	if n := r.device.Created(gputest.KindRenderPipeline); n != created+1 {
		t.Fatalf("created %d pipelines, want %d", n, created+1)
	}
	if stats.Instances != 4 {
		t.Fatalf("stats after reload: %+v", stats)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.closed != 1 {
		t.Fatalf("watcher closed %d times, want 1", w.closed)
	}
}

func TestCloseReleasesScenes(t *testing.T) {
	r, shared, e := newTestEngine(t)
	s := gridScene(shared, "grid", 4)
	e.AddScene(0, s)
	if _, err := e.Frame(); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.Update(); !errors.Is(err, scene.ErrReleased) {
		t.Fatalf("Update after Close = %v, want ErrReleased", err)
	}
	if r.releases != 1 {
		t.Fatalf("renderer released %d times, want 1", r.releases)
	}
	if len(e.Scenes()) != 0 {
		t.Fatal("scenes survived Close")
	}
}

func TestRunHeadlessStopsOnQuit(t *testing.T) {
	r, shared, e := newTestEngine(t, WithTickRate(200))
	defer e.Close()
	e.AddScene(0, gridScene(shared, "grid", 1))

	var (
		mu    sync.Mutex
		ticks int
	)
	e.SetTickCallback(func(float32) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	e.SetRenderFrameLimit(100)

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	e.Quit()
	e.Quit()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Quit")
	}

	mu.Lock()
	defer mu.Unlock()
	if ticks == 0 {
		t.Fatal("tick callback never ran")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presents == 0 {
		t.Fatal("no frame was presented")
	}
}
