package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Ext is the file extension of WGSL sources on disk.
const Ext = ".wgsl"

// Reload describes the sources a Poll picked up.
type Reload struct {
	// Sources are the names whose text changed.
	Sources []string
	// Pipelines are the pipeline keys built from a replaced module.
	Pipelines []descriptor_key.Key
}

// Empty reports whether nothing changed.
func (r Reload) Empty() bool {
	return len(r.Sources) == 0
}

// watcher is the implementation of the Watcher interface.
type watcher struct {
	mu      *sync.Mutex
	dir     string
	cache   ShaderModuleCache
	fs      *fsnotify.Watcher
	pending map[string]struct{}
	errs    []error
	done    chan struct{}
	closed  bool
	logger  *log.Logger
}

// Watcher feeds edits of WGSL files in a directory into a ShaderModuleCache. File events
// are only queued by the background goroutine; the caller applies them with Poll from
// the goroutine that owns the frame.
type Watcher interface {
	// Poll reads every file changed since the last call and replaces its source in the cache.
	//
	// Returns:
	//   - Reload: the changed sources and the pipelines to rebuild
	//   - error: joined read and watch errors; sources that could be read are still applied
	Poll() (Reload, error)

	// Close stops watching. It is safe to call more than once.
	//
	// Returns:
	//   - error: an error from the underlying watcher
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher watches dir for WGSL edits. The sources should already be registered,
// for example with LoadDir.
//
// Parameters:
//   - dir: the shader directory
//   - cache: the cache receiving updates
//   - l: the logger; nil uses the shader component logger
//
// Returns:
//   - Watcher: the running watcher
//   - error: an error if the directory cannot be watched
func NewWatcher(dir string, cache ShaderModuleCache, l *log.Logger) (Watcher, error) {
	if cache == nil {
		panic("shader: NewWatcher requires a cache")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("shader: watch %q: %w", dir, err)
	}
	if l == nil {
		l = logger.For("shader")
	}
	w := &watcher{
		mu:      &sync.Mutex{},
		dir:     dir,
		cache:   cache,
		fs:      fs,
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
		logger:  l,
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Ext(e.Name) != Ext {
				continue
			}
			if e.Op.Has(fsnotify.Write) || e.Op.Has(fsnotify.Create) {
				w.mu.Lock()
				w.pending[e.Name] = struct{}{}
				w.mu.Unlock()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.errs = append(w.errs, err)
			w.mu.Unlock()
		case <-w.done:
			return
		}
	}
}

func (w *watcher) Poll() (Reload, error) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	errs := w.errs
	w.errs = nil
	w.mu.Unlock()
	slices.Sort(paths)

	var r Reload
	seen := make(map[descriptor_key.Key]bool)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			// editors often write through a rename, the next event carries the file
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		name := SourceName(p)
		if src, ok := w.cache.Source(name); ok && src.Code == string(data) {
			continue
		}
		r.Sources = append(r.Sources, name)
		for _, k := range w.cache.UpdateSource(name, string(data)) {
			if !seen[k] {
				seen[k] = true
				r.Pipelines = append(r.Pipelines, k)
			}
		}
	}
	if !r.Empty() {
		w.logger.Info("reloaded shaders", "sources", r.Sources, "pipelines", len(r.Pipelines))
	}
	return r, errors.Join(errs...)
}

func (w *watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	close(w.done)
	return w.fs.Close()
}

// SourceName maps a WGSL file path to its source name, the base name without extension.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - string: the source name
func SourceName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Ext)
}

// LoadDir registers every WGSL file in dir with the cache.
//
// Parameters:
//   - cache: the receiving cache
//   - dir: the shader directory
//
// Returns:
//   - []string: the registered source names in directory order
//   - error: an error if the directory or a file cannot be read
func LoadDir(cache ShaderModuleCache, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return names, err
		}
		name := SourceName(e.Name())
		cache.Register(name, string(data))
		names = append(names, name)
	}
	return names, nil
}
