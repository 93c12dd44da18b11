package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[renderer]
msaa = 1
present_mode = "uncapped"

[batcher]
workers = 8

[shaders]
dir = "shaders"
watch = true

[log]
level = "debug"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Renderer.MSAA != 1 || cfg.Renderer.PresentMode != "uncapped" {
		t.Fatalf("renderer:\nhave %+v", cfg.Renderer)
	}
	if cfg.Batcher.Workers != 8 {
		t.Fatalf("batcher.workers:\nhave %d\nwant 8", cfg.Batcher.Workers)
	}
	if cfg.Batcher.QueueSize != Default().Batcher.QueueSize {
		t.Fatalf("batcher.queue_size lost its default: %d", cfg.Batcher.QueueSize)
	}
	if !cfg.Shaders.Watch || cfg.Shaders.Dir != "shaders" {
		t.Fatalf("shaders:\nhave %+v", cfg.Shaders)
	}
}

func TestParseRejects(t *testing.T) {
	for _, x := range [...]struct {
		name    string
		src     string
		invalid bool
	}{
		{"msaa", "[renderer]\nmsaa = 3\n", true},
		{"present", "[renderer]\npresent_mode = \"mailbox\"\n", true},
		{"workers", "[batcher]\nworkers = 0\n", true},
		{"watch without dir", "[shaders]\nwatch = true\n", true},
		{"unknown key", "[renderer]\nfoo = 1\n", false},
		{"syntax", "[renderer\n", false},
	} {
		_, err := Parse([]byte(x.src))
		if err == nil {
			t.Fatalf("%s: expected an error", x.name)
		}
		if x.invalid && !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s:\nhave %v\nwant %v", x.name, err, ErrInvalid)
		}
	}
}

func TestLoadAndEncode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxy.toml")
	data, err := Default().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(Encode(Default)):\nhave %+v\nwant %+v", cfg, Default())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load: expected an error for a missing file")
	}
}
