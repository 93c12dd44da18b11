package frame

import "github.com/charmbracelet/log"

// ExecutorBuilderOption is a function that configures an executor during construction.
type ExecutorBuilderOption func(*executor)

// WithLogger sets the logger of the executor.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ExecutorBuilderOption: a function that applies the option to an executor
func WithLogger(l *log.Logger) ExecutorBuilderOption {
	return func(e *executor) {
		if l != nil {
			e.logger = l
		}
	}
}
