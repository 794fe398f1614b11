package worker

import (
	"time"

	"github.com/okian/ceoorcto/pkg/logger"
)

// Option configures a Worker.
type Option func(*Worker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetries sets how many times a failed submit is retried, with a
// linearly growing delay starting at backoff.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(w *Worker) {
		if retries >= 0 {
			w.retries = retries
		}
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}
