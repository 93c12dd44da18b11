package scene

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/camera"
	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/render_order"
	"github.com/charmbracelet/log"
)

// ErrReleased is returned by Update after Release.
var ErrReleased = errors.New("scene: scene has been released")

// Scene is a retained-mode scene: a node graph plus everything derived from it.
// Edits are announced with OnChange (or implicitly by Add and Remove) and applied by the
// next Update; Draw replays the last built order without rebuilding anything.
type Scene interface {
	// ID returns the scene's unique identifier, shared with its arena.
	//
	// Returns:
	//   - string: the identifier
	ID() string

	// Name returns the scene's name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Root returns the root node. Structural edits below the root must be followed by
	// OnChange with StageGeometry, transform edits by StageTransforms.
	//
	// Returns:
	//   - node.Node: the root
	Root() node.Node

	// Add attaches nodes to the root and schedules a geometry rebuild.
	//
	// Parameters:
	//   - nodes: the nodes to attach
	Add(nodes ...node.Node)

	// Remove detaches a direct child of the root. A geometry rebuild is scheduled when a
	// node was removed.
	//
	// Parameters:
	//   - n: the node to detach
	//
	// Returns:
	//   - bool: whether n was a child of the root
	Remove(n node.Node) bool

	// Camera returns the scene camera.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// Arena returns the scene's exclusive GPU arena.
	//
	// Returns:
	//   - arena.Scene: the arena
	Arena() arena.Scene

	// OnChange schedules the stages of a change, plus the stages they imply, for the next
	// Update. Unknown stages are ignored.
	//
	// Parameters:
	//   - change: the affected stages and a reason for the log
	OnChange(change Change)

	// Pending returns the stages the next Update will run, in execution order.
	//
	// Returns:
	//   - []BuildStage: the scheduled stages
	Pending() []BuildStage

	// Update runs every scheduled stage in canonical order, then uploads the camera
	// globals. When a stage fails it and every later stage stay scheduled.
	//
	// Returns:
	//   - error: the first stage error, or ErrReleased
	Update() error

	// Draw records the current render order into a pass. Nothing is drawn while a render
	// order rebuild is pending or after one failed, since the objects the previous order
	// references may already be freed.
	//
	// Parameters:
	//   - pass: the pass to record into
	//
	// Returns:
	//   - frame.Stats: the commands recorded
	Draw(pass frame.PassEncoder) frame.Stats

	// Layout returns the last batcher layout, or nil before the first Update.
	//
	// Returns:
	//   - *batcher.Layout: the layout
	Layout() *batcher.Layout

	// Order returns the last render order, or nil before the first Update.
	//
	// Returns:
	//   - *render_order.RenderOrder: the order
	Order() *render_order.RenderOrder

	// InstanceBuffer returns the current instance buffer, or nil before the first Update.
	//
	// Returns:
	//   - *batcher.InstanceBuffer: the instance buffer
	InstanceBuffer() *batcher.InstanceBuffer

	// Totals returns the executor's accumulated stats and frame count.
	//
	// Returns:
	//   - frame.Stats: the accumulated stats
	//   - uint64: the frame count
	Totals() (frame.Stats, uint64)

	// Release frees the instance buffer and the scene arena. The scene cannot be used
	// afterwards.
	Release()
}

type stageFunc func(s *scene) error

// stages is the dispatch table of Update.
var stages = map[BuildStage]stageFunc{
	StageGeometry:    (*scene).buildGeometry,
	StageTransforms:  (*scene).updateTransforms,
	StageMaterials:   (*scene).releaseMaterials,
	StageRenderOrder: (*scene).buildRenderOrder,
	StageGlobals:     (*scene).writeGlobals,
}

type scene struct {
	mu *sync.RWMutex

	name     string
	root     node.Node
	cam      camera.Camera
	lightDir [3]float32

	shared   arena.Shared
	arena    arena.Scene
	batcher  batcher.GeometryBatcher
	builder  render_order.Builder
	executor frame.Executor
	logger   *log.Logger

	orderOpts    render_order.Options
	batcherOpts  []batcher.GeometryBatcherBuilderOption
	builderOpts  []render_order.BuilderOption
	executorOpts []frame.ExecutorBuilderOption

	pending  stageSet
	reasons  []string
	instance *batcher.InstanceBuffer
	layout   *batcher.Layout
	order    *render_order.RenderOrder
	released bool
}

var _ Scene = &scene{}

// NewScene creates a scene drawing through a shared arena. The scene takes its own arena
// from shared and starts with a geometry build scheduled. NewScene panics if shared is nil.
//
// Parameters:
//   - shared: the shared arena
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(shared arena.Shared, options ...SceneBuilderOption) Scene {
	if shared == nil {
		panic("scene: NewScene requires a shared arena")
	}
	s := &scene{
		mu:       &sync.RWMutex{},
		name:     "scene",
		lightDir: [3]float32{-0.4, -1, -0.3},
		shared:   shared,
		logger:   logger.For("scene"),
	}
	for _, option := range options {
		option(s)
	}
	if s.root == nil {
		s.root = node.NewNode(node.WithName(s.name))
	}
	if s.cam == nil {
		s.cam = camera.NewCamera()
	}

	// dependents are built after options so their options can be collected first
	s.arena = shared.NewScene(arena.WithLabel(s.name))
	s.batcher = batcher.NewGeometryBatcher(shared.Device(), s.batcherOpts...)
	s.builder = render_order.NewBuilder(s.arena, s.builderOpts...)
	s.executor = frame.NewExecutor(s.executorOpts...)
	s.pending = s.pending.with(StageGeometry)
	s.reasons = append(s.reasons, "initial build")
	return s
}

func (s *scene) ID() string {
	return s.arena.ID()
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Root() node.Node {
	return s.root
}

func (s *scene) Camera() camera.Camera {
	return s.cam
}

func (s *scene) Arena() arena.Scene {
	return s.arena
}

func (s *scene) Add(nodes ...node.Node) {
	for _, n := range nodes {
		s.root.AddChild(n)
	}
	s.OnChange(Change{Stages: []BuildStage{StageGeometry}, Reason: "nodes added"})
}

func (s *scene) Remove(n node.Node) bool {
	if !s.root.RemoveChild(n) {
		return false
	}
	s.OnChange(Change{Stages: []BuildStage{StageGeometry}, Reason: "node removed"})
	return true
}

func (s *scene) OnChange(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending.with(change.Stages...)
	if change.Reason != "" {
		s.reasons = append(s.reasons, change.Reason)
	}
}

func (s *scene) Pending() []BuildStage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.ordered()
}

func (s *scene) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}

	run := s.pending
	if run.has(StageGeometry) {
		// a fresh batch already carries current transforms
		run &^= 1 << StageTransforms
	}
	if run != 0 {
		s.logger.Debug("rebuilding", "scene", s.name, "stages", run.String(), "reason", strings.Join(s.reasons, "; "))
	}
	run = run.with(StageGlobals)
	if run.has(StageRenderOrder) {
		// geometry and material stages free what the current order binds
		s.order = nil
	}

	ordered := run.ordered()
	for i, st := range ordered {
		if err := stages[st](s); err != nil {
			s.pending = 0
			s.pending = s.pending.with(ordered[i:]...)
			s.pending &^= 1 << StageGlobals
			return fmt.Errorf("scene: %s stage: %w", st, err)
		}
	}
	s.pending = 0
	s.reasons = s.reasons[:0]
	return nil
}

func (s *scene) Draw(pass frame.PassEncoder) frame.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.released || s.pending.has(StageRenderOrder) {
		return frame.Stats{}
	}
	return s.executor.Draw(pass, s.order)
}

func (s *scene) Layout() *batcher.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

func (s *scene) Order() *render_order.RenderOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order
}

func (s *scene) InstanceBuffer() *batcher.InstanceBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instance
}

func (s *scene) Totals() (frame.Stats, uint64) {
	return s.executor.Totals()
}

func (s *scene) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.order = nil
	s.layout = nil
	s.instance = nil
	s.batcher.Release()
	s.arena.Release()
	s.logger.Debug("released scene", "scene", s.name)
}

// --- stages; callers hold the write lock ---

func (s *scene) buildGeometry() error {
	buf, layout, err := s.batcher.Build(s.root)
	if err != nil {
		return err
	}
	s.instance = buf
	s.layout = layout
	if ferr := layout.Err(); ferr != nil {
		s.logger.Error("scene has undrawable primitives", "scene", s.name, "err", ferr)
	}
	return nil
}

func (s *scene) updateTransforms() error {
	return s.batcher.UpdateBuffers()
}

func (s *scene) releaseMaterials() error {
	s.arena.ReleaseMaterials()
	return nil
}

func (s *scene) buildRenderOrder() error {
	opts := s.orderOpts
	if s.instance != nil {
		opts.Instances = s.instance.Buffer
	}
	s.arena.Mark()
	order, err := s.builder.Build(s.layout, opts)
	if err != nil {
		return err
	}
	s.order = order
	s.arena.Sweep()
	for _, d := range order.Deferred {
		s.logger.Warn("group not drawn", "scene", s.name, "group", d.Group.Key.Short(), "reason", d.Reason)
	}
	return nil
}

func (s *scene) writeGlobals() error {
	return s.arena.WriteGlobals(s.cam.Globals(s.lightDir))
}
