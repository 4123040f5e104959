package worker

import (
	"time"

	"github.com/okian/trailvote/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTimeout bounds each broadcast call.
func WithTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithRecorders sets where vote results are sent after each broadcast.
func WithRecorders(recorders ...Recorder) Option {
	return func(w *InMemoryWorker) {
		for _, r := range recorders {
			if r != nil {
				w.recorders = append(w.recorders, r)
			}
		}
	}
}
