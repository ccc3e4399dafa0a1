// Package queue defines the contract for enqueuing and consuming
// observations inside the beacon feed pipeline.
//
// Implementations may use channels or more advanced structures. The
// feed starts with an in-memory bounded queue.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Observation represents the payload type flowing through the queue.
type Observation = model.Observation

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an observation to the queue.
	// Returns false if the queue is full and nothing was enqueued.
	Enqueue(ctx context.Context, o Observation) bool

	// Dequeue returns a channel that receives observations as they
	// become available. The channel is closed when the queue closes.
	Dequeue(ctx context.Context) <-chan Observation

	// Len returns the current number of queued observations.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new
	// observations can be enqueued and the dequeue channel closes.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	observations chan Observation
	capacity     int
	bufferSize   int
	mu           sync.RWMutex
	closed       bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	// Initialize the channel with the configured buffer size
	q.observations = make(chan Observation, q.bufferSize)

	// Initialize metrics
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds an observation to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, o Observation) bool {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordQueueProcessingLatency(float64(latency))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	// Check if we're at capacity
	if len(q.observations) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	select {
	case q.observations <- o:
		metrics.RecordQueueEnqueue()
		currentSize := len(q.observations)
		metrics.UpdateQueueSize(currentSize)
		metrics.UpdateQueueUtilization(float64(currentSize) / float64(q.capacity))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives observations as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Observation {
	// Wrap the channel to track dequeue metrics
	dequeueChan := make(chan Observation)
	go func() {
		defer close(dequeueChan)
		for obs := range q.observations {
			select {
			case dequeueChan <- obs:
				metrics.RecordQueueDequeue()
				currentSize := len(q.observations)
				metrics.UpdateQueueSize(currentSize)
				metrics.UpdateQueueUtilization(float64(currentSize) / float64(q.capacity))
			case <-ctx.Done():
				return
			}
		}
	}()
	return dequeueChan
}

// Len returns the current number of queued observations.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.observations)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}

	close(q.observations)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
