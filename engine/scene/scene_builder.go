package scene

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/camera"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/batcher"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/render_order"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene name used for its arena label and log lines.
//
// Parameters:
//   - name: the name of the scene
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithRoot sets the root node instead of an empty one.
//
// Parameters:
//   - root: the root node
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRoot(root node.Node) SceneBuilderOption {
	return func(s *scene) {
		s.root = root
	}
}

// WithCamera sets the camera whose globals are uploaded on every Update.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cam = cam
	}
}

// WithLightDirection sets the direction the key light travels.
func WithLightDirection(x, y, z float32) SceneBuilderOption {
	return func(s *scene) {
		s.lightDir = [3]float32{x, y, z}
	}
}

// WithDefaultMaterial sets the material drawn for primitives that carry none.
// Without one those primitives are deferred.
//
// Parameters:
//   - mat: the fallback material
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDefaultMaterial(mat *material.Material) SceneBuilderOption {
	return func(s *scene) {
		s.orderOpts.DefaultMaterial = mat
	}
}

// WithTarget sets the formats of the pass the scene is drawn into.
//
// Parameters:
//   - color: the color attachment format
//   - depth: the depth attachment format, or TextureFormatUndefined for none
//   - samples: the MSAA sample count
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithTarget(color, depth wgpu.TextureFormat, samples uint32) SceneBuilderOption {
	return func(s *scene) {
		s.orderOpts.ColorFormat = color
		s.orderOpts.DepthFormat = depth
		s.orderOpts.SampleCount = samples
	}
}

// WithBatcherOptions forwards options to the scene's geometry batcher.
func WithBatcherOptions(options ...batcher.GeometryBatcherBuilderOption) SceneBuilderOption {
	return func(s *scene) {
		s.batcherOpts = append(s.batcherOpts, options...)
	}
}

// WithRenderOrderOptions forwards options to the scene's render order builder.
func WithRenderOrderOptions(options ...render_order.BuilderOption) SceneBuilderOption {
	return func(s *scene) {
		s.builderOpts = append(s.builderOpts, options...)
	}
}

// WithExecutorOptions forwards options to the scene's frame executor.
func WithExecutorOptions(options ...frame.ExecutorBuilderOption) SceneBuilderOption {
	return func(s *scene) {
		s.executorOpts = append(s.executorOpts, options...)
	}
}

// WithLogger replaces the scene logger.
func WithLogger(l *log.Logger) SceneBuilderOption {
	return func(s *scene) {
		if l != nil {
			s.logger = l
		}
	}
}
