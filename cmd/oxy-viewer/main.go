// Command oxy-viewer draws a glTF model or a grid of cubes through the instanced renderer.
//
// Controls: drag to orbit, scroll or W/S to zoom, A/D to orbit, R to rebuild the scene,
// N to add an instance, M to cycle the material tint, Escape to quit.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine"
	"github.com/Carmen-Shannon/oxy-instancer/engine/camera"
	"github.com/Carmen-Shannon/oxy-instancer/engine/config"
	"github.com/Carmen-Shannon/oxy-instancer/engine/loader"
	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/arena"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-instancer/engine/scene"
	"github.com/Carmen-Shannon/oxy-instancer/engine/window"
)

const (
	orbitStep   = 0.05
	dragScale   = 0.01
	zoomStep    = 0.5
	gridSpacing = 2
)

var tints = [][4]float32{
	{1, 1, 1, 1},
	{0.9, 0.3, 0.3, 1},
	{0.3, 0.9, 0.4, 1},
	{0.3, 0.5, 0.95, 1},
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	modelPath := flag.String("model", "", "glTF or GLB model to draw instead of the cube grid")
	flag.Parse()

	if err := run(*configPath, *modelPath); err != nil {
		fmt.Fprintln(os.Stderr, "oxy-viewer:", err)
		os.Exit(1)
	}
}

func run(configPath, modelPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if modelPath != "" {
		cfg.Scene.Model = modelPath
	}
	logger.SetLevel(cfg.Log.Level)
	l := logger.For("viewer")

	mode, err := renderer.ParsePresentMode(cfg.Renderer.PresentMode)
	if err != nil {
		return err
	}

	win, err := window.NewWindow(window.WithTitle("oxy-viewer"))
	if err != nil {
		return err
	}
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, win,
		renderer.WithPresentMode(mode),
		renderer.WithMSAA(renderer.MSAASampleCount(cfg.Renderer.MSAA)),
		renderer.WithForceSoftwareRenderer(cfg.Renderer.ForceSoftware),
		renderer.WithClearColor(cfg.Renderer.ClearColor),
	)
	if err != nil {
		win.Close()
		return err
	}

	shared := arena.NewShared(r.Device(), arena.WithShaderOptions(shader.WithSources(material.Sources())))
	engineOpts := []engine.EngineBuilderOption{
		engine.WithWindow(win),
		engine.WithProfiling(true),
	}
	if cfg.Shaders.Dir != "" {
		names, err := shader.LoadDir(shared.Shaders(), cfg.Shaders.Dir)
		if err != nil {
			l.Warn("shader directory", "dir", cfg.Shaders.Dir, "err", err)
		} else {
			l.Info("loaded shader overrides", "sources", names)
		}
		if cfg.Shaders.Watch {
			w, err := shader.NewWatcher(cfg.Shaders.Dir, shared.Shaders(), nil)
			if err != nil {
				l.Warn("shader watcher", "dir", cfg.Shaders.Dir, "err", err)
			} else {
				engineOpts = append(engineOpts, engine.WithShaderWatcher(w))
			}
		}
	}

	spawn, root, err := content(cfg)
	if err != nil {
		r.Release()
		shared.Teardown()
		win.Close()
		return err
	}

	target := r.Target()
	cam := camera.NewCamera(
		camera.WithRadius(float32(cfg.Scene.CameraDistance)),
		camera.WithAspect(float32(win.Width())/float32(max(win.Height(), 1))),
	)
	s := scene.NewScene(shared,
		scene.WithName("viewer"),
		scene.WithRoot(root),
		scene.WithCamera(cam),
		scene.WithTarget(target.Color, target.Depth, target.Samples),
		scene.WithBatcherOptions(
			batcher.WithWorkers(cfg.Batcher.Workers),
			batcher.WithParallelThreshold(cfg.Batcher.ParallelThreshold),
			batcher.WithQueueSize(cfg.Batcher.QueueSize),
		),
	)
	engineOpts = append(engineOpts, engine.WithScene(0, s))
	eng := engine.NewEngine(r, shared, engineOpts...)

	// scene edits run on the render goroutine between frames
	edits := make(chan func(), 64)
	queue := func(f func()) {
		select {
		case edits <- f:
		default:
			l.Warn("input dropped, edit queue full")
		}
	}
	eng.SetRenderCallback(func(float32) {
		for {
			select {
			case f := <-edits:
				f()
			default:
				return
			}
		}
	})

	tint := 0
	count := len(root.Children())
	win.SetDragCallback(func(dx, dy float32) {
		cam.Orbit(-dx*dragScale, dy*dragScale)
	})
	win.SetScrollCallback(func(delta float32) {
		cam.Zoom(delta * zoomStep)
	})
	win.SetKeyDownCallback(func(key uint32) {
		switch key {
		case common.KeyW:
			cam.Zoom(zoomStep)
		case common.KeyS:
			cam.Zoom(-zoomStep)
		case common.KeyA:
			cam.Orbit(orbitStep, 0)
		case common.KeyD:
			cam.Orbit(-orbitStep, 0)
		case common.KeyR:
			queue(func() {
				s.OnChange(scene.Change{Stages: []scene.BuildStage{scene.StageGeometry}, Reason: "manual rebuild"})
			})
		case common.KeyN:
			queue(func() {
				n := spawn(count)
				count++
				s.Add(n)
			})
		case common.KeyM:
			tint = (tint + 1) % len(tints)
			color := tints[tint]
			queue(func() {
				for _, m := range materials(s.Root()) {
					m.BaseColorFactor = color
				}
				s.OnChange(scene.Change{Stages: []scene.BuildStage{scene.StageMaterials}, Reason: "tint"})
			})
		}
	})

	eng.Run()
	return eng.Close()
}

// content builds the initial scene graph and a function creating the i-th extra instance.
func content(cfg config.Config) (func(i int) node.Node, node.Node, error) {
	if cfg.Scene.Model != "" {
		m, err := loader.NewLoader(loader.BackendTypeGLTF).Load(cfg.Scene.Model)
		if err != nil {
			return nil, nil, err
		}
		root := node.NewNode(node.WithName("model"), node.WithChildren(m.Instantiate()))
		spawn := func(i int) node.Node {
			return m.Instantiate(node.WithTranslation(float32(i)*gridSpacing, 0, 0))
		}
		return spawn, root, nil
	}

	cube := mesh.Cube(1, material.NewMaterial(material.WithName("cube")))
	root := scene.Grid(cfg.Scene.GridSize, gridSpacing, cube)
	side := float32(len(root.Children())) * gridSpacing
	spawn := func(i int) node.Node {
		return node.NewNode(node.WithMesh(cube), node.WithTranslation(0, gridSpacing, float32(i)*gridSpacing-side/2))
	}
	return spawn, root, nil
}

// materials collects the distinct materials reachable from root.
func materials(root node.Node) []*material.Material {
	seen := make(map[*material.Material]bool)
	var out []*material.Material
	var walk func(n node.Node)
	walk = func(n node.Node) {
		if m := n.Mesh(); m != nil {
			for _, p := range m.Primitives {
				if p.Material != nil && !seen[p.Material] {
					seen[p.Material] = true
					out = append(out, p.Material)
				}
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}
