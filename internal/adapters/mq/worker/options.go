// Package worker drains the event queue into the dispatcher.
package worker

import (
	"time"

	"github.com/okian/zen/pkg/logger"
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

// WithRetry sets how often a transiently failed dispatch is redelivered and
// the first backoff delay. Zero retries disables redelivery.
func WithRetry(retries uint64, backoff time.Duration) Option {
	return func(w *InMemoryWorker) {
		w.retries = retries
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}
