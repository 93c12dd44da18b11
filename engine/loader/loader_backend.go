package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-instancer/engine/model"
)

// loaderBackend imports one container format. Concrete implementations (e.g.
// gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load imports a model from a file.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - model.Model: the imported model
	//   - error: error if loading fails
	Load(path string) (model.Model, error)

	// LoadReader imports a model from a stream.
	//
	// Parameters:
	//   - name: the model name
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - model.Model: the imported model
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error)
}
