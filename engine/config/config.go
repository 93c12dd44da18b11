// Package config loads engine settings from TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Config is the root of an engine TOML file.
type Config struct {
	Renderer RendererConfig `toml:"renderer"`
	Batcher  BatcherConfig  `toml:"batcher"`
	Shaders  ShadersConfig  `toml:"shaders"`
	Log      LogConfig      `toml:"log"`
	Scene    SceneConfig    `toml:"scene"`
}

// RendererConfig controls surface and pass setup.
type RendererConfig struct {
	// MSAA is the sample count: 1, 4, 8 or 16.
	MSAA uint32 `toml:"msaa"`
	// PresentMode is "vsync" or "uncapped".
	PresentMode   string     `toml:"present_mode"`
	ForceSoftware bool       `toml:"force_software"`
	ClearColor    [4]float64 `toml:"clear_color"`
}

// BatcherConfig controls instance packing.
type BatcherConfig struct {
	// Workers is the number of pooled goroutines used to pack instance blocks.
	Workers int `toml:"workers"`
	// ParallelThreshold is the instance count at or above which packing fans out to the pool.
	ParallelThreshold int `toml:"parallel_threshold"`
	// QueueSize is the task queue depth of the worker pool.
	QueueSize int `toml:"queue_size"`
}

// ShadersConfig locates WGSL overrides on disk.
type ShadersConfig struct {
	// Dir is a directory of .wgsl files that replace the built-in sources by file stem.
	Dir string `toml:"dir"`
	// Watch enables hot reload of Dir.
	Watch bool `toml:"watch"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `toml:"level"`
}

// SceneConfig describes what the viewer shows.
type SceneConfig struct {
	// Model is an optional .glb path. When empty a demo grid is built.
	Model string `toml:"model"`
	// GridSize is the number of demo instances.
	GridSize int `toml:"grid_size"`
	// CameraDistance is the initial orbit radius.
	CameraDistance float64 `toml:"camera_distance"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Renderer: RendererConfig{
			MSAA:        4,
			PresentMode: "vsync",
			ClearColor:  [4]float64{0.1, 0.1, 0.1, 1},
		},
		Batcher: BatcherConfig{
			Workers:           4,
			ParallelThreshold: 4096,
			QueueSize:         256,
		},
		Log: LogConfig{Level: "info"},
		Scene: SceneConfig{
			GridSize:       64,
			CameraDistance: 12,
		},
	}
}

// Parse decodes TOML on top of Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a TOML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Renderer.MSAA {
	case 1, 4, 8, 16:
	default:
		return fmt.Errorf("%w: renderer.msaa must be 1, 4, 8 or 16, got %d", ErrInvalid, c.Renderer.MSAA)
	}
	switch c.Renderer.PresentMode {
	case "vsync", "uncapped":
	default:
		return fmt.Errorf("%w: renderer.present_mode %q", ErrInvalid, c.Renderer.PresentMode)
	}
	if c.Batcher.Workers < 1 {
		return fmt.Errorf("%w: batcher.workers must be positive, got %d", ErrInvalid, c.Batcher.Workers)
	}
	if c.Batcher.ParallelThreshold < 1 {
		return fmt.Errorf("%w: batcher.parallel_threshold must be positive, got %d", ErrInvalid, c.Batcher.ParallelThreshold)
	}
	if c.Batcher.QueueSize < 1 {
		return fmt.Errorf("%w: batcher.queue_size must be positive, got %d", ErrInvalid, c.Batcher.QueueSize)
	}
	if c.Shaders.Watch && c.Shaders.Dir == "" {
		return fmt.Errorf("%w: shaders.watch requires shaders.dir", ErrInvalid)
	}
	if c.Scene.GridSize < 0 {
		return fmt.Errorf("%w: scene.grid_size must not be negative", ErrInvalid)
	}
	return nil
}

// Encode writes the configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
