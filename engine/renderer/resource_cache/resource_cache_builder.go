package resource_cache

import "github.com/charmbracelet/log"

// ResourceCacheBuilderOption is a functional option for configuring a ResourceCache.
type ResourceCacheBuilderOption[T any] func(*resourceCache[T])

// WithFactory sets the constructor Get and Acquire use for unseen descriptors.
//
// Parameters:
//   - factory: creates the object described by descriptor
//
// Returns:
//   - ResourceCacheBuilderOption[T]: a function that applies the factory to a cache
func WithFactory[T any](factory func(descriptor any) (T, error)) ResourceCacheBuilderOption[T] {
	return func(c *resourceCache[T]) {
		c.factory = factory
	}
}

// WithReleaser sets the function called with every object the cache drops.
//
// Parameters:
//   - releaser: frees the object, typically by calling its Release method
//
// Returns:
//   - ResourceCacheBuilderOption[T]: a function that applies the releaser to a cache
func WithReleaser[T any](releaser func(T)) ResourceCacheBuilderOption[T] {
	return func(c *resourceCache[T]) {
		c.releaser = releaser
	}
}

// WithLogger overrides the component logger.
//
// Parameters:
//   - l: the logger to use
//
// Returns:
//   - ResourceCacheBuilderOption[T]: a function that applies the logger to a cache
func WithLogger[T any](l *log.Logger) ResourceCacheBuilderOption[T] {
	return func(c *resourceCache[T]) {
		c.logger = l
	}
}
