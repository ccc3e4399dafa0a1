// Package worker defines worker contracts for delivering queued
// observations to a checkpoint endpoint.
package worker

import (
	"time"

	"github.com/okian/lapline/pkg/logger"
)

// Option applies a configuration option to the PostingWorker.
type Option func(*PostingWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *PostingWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithRetries sets how many times a failed post is retried.
func WithRetries(retries int) Option {
	return func(w *PostingWorker) {
		if retries >= 0 {
			w.retries = retries
		}
	}
}

// WithBackoff sets the base delay between retry attempts.
func WithBackoff(backoff time.Duration) Option {
	return func(w *PostingWorker) {
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *PostingWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}
