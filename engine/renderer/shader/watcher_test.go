package shader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
)

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "lit.wgsl"), []byte(testVertex), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	c, _ := newTestCache(t)
	names, err := LoadDir(c, dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(names) != 1 || names[0] != "lit" {
		t.Fatalf("names = %v, want [lit]", names)
	}
	if src, ok := c.Source("lit"); !ok || src.Code != testVertex {
		t.Fatalf("source not registered")
	}
}

func TestWatcherPoll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lit.wgsl")
	if err := os.WriteFile(path, []byte(testVertex), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _ := newTestCache(t)
	if _, err := LoadDir(c, dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	m, err := c.Module("lit", Context{})
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	pk := descriptor_key.Key("|pipeline{lit}")
	c.Reference(m.Key, pk)

	w, err := NewWatcher(dir, c, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if r, err := w.Poll(); err != nil || !r.Empty() {
		t.Fatalf("Poll before edit = %+v, %v", r, err)
	}

	edited := strings.Replace(testVertex, "0.0, 0.0, 0.0", "0.25, 0.0, 0.0", 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	// an editor save can arrive as several events, possibly with a truncated file first
	deadline := time.Now().Add(5 * time.Second)
	var sources []string
	var pipelines []descriptor_key.Key
	for time.Now().Before(deadline) {
		r, err := w.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		sources = append(sources, r.Sources...)
		pipelines = append(pipelines, r.Pipelines...)
		if src, _ := c.Source("lit"); src.Code == edited {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if src, _ := c.Source("lit"); src.Code != edited {
		t.Fatalf("source not updated before the deadline")
	}
	for _, name := range sources {
		if name != "lit" {
			t.Fatalf("unexpected source %q", name)
		}
	}
	if len(pipelines) != 1 || pipelines[0] != pk {
		t.Fatalf("Pipelines = %v, want [%s]", pipelines, pk)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
