// Package loader imports glTF 2.0 and GLB containers into models.
package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/model"
	"github.com/charmbracelet/log"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu         *sync.RWMutex
	logger     *log.Logger
	modelCache map[string]model.Model
	backend    loaderBackend
}

// Loader imports models and caches them by path or name. Loading the same path twice
// returns the same model, so every instance of it shares meshes and batches together.
type Loader interface {
	// Load imports a model file and caches the result by path.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - model.Model: the loaded model
	//   - error: error if the extension is unsupported or import fails
	Load(path string) (model.Model, error)

	// LoadReader imports a model from a stream and caches it by name.
	//
	// Parameters:
	//   - name: the cache key and model name
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - model.Model: the loaded model
	//   - error: error if import fails
	LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error)

	// Get retrieves a cached model by key. Returns nil if not found.
	//
	// Parameters:
	//   - key: the path or name the model was loaded under
	//
	// Returns:
	//   - model.Model: the cached model or nil
	Get(key string) model.Model

	// Models returns a copy of the model cache.
	//
	// Returns:
	//   - map[string]model.Model: all cached models by key
	Models() map[string]model.Model

	// Evict drops a model from the cache.
	//
	// Parameters:
	//   - key: the cache key
	//
	// Returns:
	//   - bool: true if the model was cached
	Evict(key string) bool
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: the configured loader
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:         &sync.RWMutex{},
		logger:     logger.For("loader"),
		modelCache: make(map[string]model.Model),
	}
	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend(l.logger)
	default:
		panic(fmt.Sprintf("loader: unknown backend type %d", backendType))
	}
	return l
}

func (l *loader) Load(path string) (model.Model, error) {
	if m := l.Get(path); m != nil {
		return m, nil
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gltf", ".glb":
	default:
		return nil, fmt.Errorf("loader: unsupported model format %q", ext)
	}

	m, err := l.backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return l.store(path, m), nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error) {
	if m := l.Get(name); m != nil {
		return m, nil
	}

	m, err := l.backend.LoadReader(name, r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return l.store(name, m), nil
}

// store caches m unless a concurrent load cached the key first, in which case that
// model wins so every caller shares one set of meshes.
func (l *loader) store(key string, m model.Model) model.Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.modelCache[key]; ok {
		return existing
	}
	l.modelCache[key] = m
	return m
}

func (l *loader) Get(key string) model.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[key]
}

func (l *loader) Models() map[string]model.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]model.Model, len(l.modelCache))
	for k, v := range l.modelCache {
		result[k] = v
	}
	return result
}

func (l *loader) Evict(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.modelCache[key]
	delete(l.modelCache, key)
	return ok
}
