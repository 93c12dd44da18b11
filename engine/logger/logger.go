// Package logger owns the process-wide structured logger. Components take a sub-logger
// from For and log with key/value pairs.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	once sync.Once
	mu   sync.Mutex
	base *log.Logger
	subs = map[string]*log.Logger{}
)

func root() *log.Logger {
	once.Do(func() {
		base = log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "oxy",
		})
		base.SetLevel(log.InfoLevel)
	})
	return base
}

// Default returns the process logger.
func Default() *log.Logger {
	return root()
}

// For returns the sub-logger for a component, prefixed e.g. "oxy/batcher".
// Repeated calls with the same name return the same logger.
func For(component string) *log.Logger {
	r := root()
	mu.Lock()
	defer mu.Unlock()

	if l, ok := subs[component]; ok {
		return l
	}
	l := r.WithPrefix("oxy/" + component)
	subs[component] = l
	return l
}

// SetLevel parses a level name (debug, info, warn, error, fatal) and applies it to the
// process logger and every sub-logger handed out by For.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	r := root()
	mu.Lock()
	defer mu.Unlock()

	r.SetLevel(lvl)
	for _, l := range subs {
		l.SetLevel(lvl)
	}
	return nil
}
