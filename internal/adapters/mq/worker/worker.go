// Package worker defines worker contracts for delivering queued
// observations to a checkpoint endpoint.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/lapline/internal/adapters/mq/queue"
	"github.com/okian/lapline/pkg/logger"
	"github.com/okian/lapline/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	defaultRetries          = 3
	defaultBackoff          = 200 * time.Millisecond
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Observation abstracts what workers read off the queue.
type Observation = queue.Observation

// Poster delivers one observation to the checkpoint.
type Poster interface {
	Post(ctx context.Context, o Observation) error
}

// Queue defines how workers receive observations.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Observation
}

// Worker delivers observations using the provided Poster.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will deliver any in-flight observation before stopping.
	Shutdown(ctx context.Context) error
}

// PostingWorker implements Worker for delivering observations.
type PostingWorker struct {
	queue  Queue
	poster Poster
	name   string

	// Retry configuration
	retries int
	backoff time.Duration

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewPostingWorker creates a new worker with configuration options.
func NewPostingWorker(queue Queue, poster Poster, opts ...Option) *PostingWorker {
	w := &PostingWorker{
		queue:    queue,
		poster:   poster,
		name:     "worker", // default name
		retries:  defaultRetries,
		backoff:  defaultBackoff,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *PostingWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	obsChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case obs, ok := <-obsChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.deliver(ctx, obs); err != nil {
				w.logger.Error(ctx, "observation delivery failed", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *PostingWorker) Shutdown(ctx context.Context) error {
	// Signal shutdown
	close(w.shutdown)

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// deliver posts one observation with bounded retries and linear backoff.
func (w *PostingWorker) deliver(ctx context.Context, obs Observation) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			metrics.RecordWorkerRetry()
			select {
			case <-time.After(time.Duration(attempt) * w.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = w.poster.Post(ctx, obs); lastErr == nil {
			return nil
		}
		w.logger.Warn(ctx, "post attempt failed",
			logger.Int64("minor", obs.Minor),
			logger.Int("attempt", attempt+1),
			logger.Error(lastErr),
		)
	}

	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", "delivery_error")
	metrics.RecordErrorByType("delivery_error", "high")
	return fmt.Errorf("delivery of minor %d gave up after %d attempts: %w",
		obs.Minor, w.retries+1, lastErr)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*PostingWorker
	queue   Queue
	poster  Poster

	// Shutdown control
	shutdown chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, poster Poster, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*PostingWorker, workerCount),
		queue:    queue,
		poster:   poster,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewPostingWorker(
			queue,
			poster,
			append(opts, WithName("worker-"+strconv.Itoa(i)))...,
		)
	}

	// Initialize worker metrics
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, worker := range p.workers {
		close(worker.shutdown)
	}
	for _, worker := range p.workers {
		select {
		case <-worker.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new observations
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Wait for all workers to drain or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	metrics.UpdateWorkerActiveCount(0)
	return nil
}
