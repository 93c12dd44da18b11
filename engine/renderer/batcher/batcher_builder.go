package batcher

import "github.com/charmbracelet/log"

// GeometryBatcherBuilderOption is a function that configures a batcher during construction.
type GeometryBatcherBuilderOption func(*geometryBatcher)

// WithWorkers sets the number of pooled goroutines used to pack instances.
//
// Parameters:
//   - n: the worker count, at least 1
//
// Returns:
//   - GeometryBatcherBuilderOption: a function that applies the option to a batcher
func WithWorkers(n int) GeometryBatcherBuilderOption {
	return func(b *geometryBatcher) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithParallelThreshold sets the instance count at or above which packing fans out to
// the worker pool.
//
// Parameters:
//   - n: the threshold
//
// Returns:
//   - GeometryBatcherBuilderOption: a function that applies the option to a batcher
func WithParallelThreshold(n int) GeometryBatcherBuilderOption {
	return func(b *geometryBatcher) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithQueueSize sets the task queue depth of the worker pool.
//
// Parameters:
//   - n: the queue depth
//
// Returns:
//   - GeometryBatcherBuilderOption: a function that applies the option to a batcher
func WithQueueSize(n int) GeometryBatcherBuilderOption {
	return func(b *geometryBatcher) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the logger faults are reported to.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - GeometryBatcherBuilderOption: a function that applies the option to a batcher
func WithLogger(l *log.Logger) GeometryBatcherBuilderOption {
	return func(b *geometryBatcher) {
		if l != nil {
			b.logger = l
		}
	}
}
