package arena

// SceneBuilderOption is a function that configures a scene arena during construction.
type SceneBuilderOption func(*scene)

// WithLabel sets the debug label prefixed to every object the scene arena creates.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - SceneBuilderOption: a function that applies the label to the scene arena
func WithLabel(label string) SceneBuilderOption {
	return func(sc *scene) {
		sc.label = label
	}
}
