// Package tracklock provides per-tracker mutual exclusion for the
// debounce check-then-insert sequence.
package tracklock

import (
	"context"
	"sync"
	"sync/atomic"
)

// Keyed serializes units of work that share a tracker identifier.
// Work for distinct keys never contends.
type Keyed interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// On success the caller must call Release with the same key.
	Acquire(ctx context.Context, key int64) error

	// Release frees the lock for key, waking one waiter if any.
	Release(key int64)

	// Size returns the number of keys currently tracked.
	Size() int64
}

// entry is the lock state for a single key. The semaphore channel has
// capacity one; holding the token means holding the lock.
type entry struct {
	sem  chan struct{}
	refs int
}

// reset clears the entry state for reuse.
func (e *entry) reset() {
	e.refs = 0
}

// keyedMutex implements Keyed with a map of reference-counted entries.
// Entries are removed as soon as the last interested goroutine leaves,
// so the map stays proportional to in-flight trackers, not race size.
type keyedMutex struct {
	mu        sync.Mutex
	entries   map[int64]*entry
	size      atomic.Int64
	entryPool sync.Pool
}

// Option applies a configuration option to the keyedMutex.
type Option func(*keyedMutex)

// WithInitialCapacity pre-sizes the entry map.
func WithInitialCapacity(n int) Option {
	return func(k *keyedMutex) {
		if n > 0 {
			k.entries = make(map[int64]*entry, n)
		}
	}
}

// NewKeyed creates a new keyed mutex with configuration options.
func NewKeyed(opts ...Option) Keyed {
	k := &keyedMutex{
		entries: make(map[int64]*entry),
		entryPool: sync.Pool{
			New: func() interface{} {
				return &entry{sem: make(chan struct{}, 1)}
			},
		},
	}

	// Apply all options
	for _, opt := range opts {
		opt(k)
	}

	return k
}

// Acquire blocks until the lock for key is held or ctx is done.
func (k *keyedMutex) Acquire(ctx context.Context, key int64) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = k.entryPool.Get().(*entry)
		k.entries[key] = e
		k.size.Add(1)
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(key, e)
		return ctx.Err()
	}
}

// Release frees the lock for key.
func (k *keyedMutex) Release(key int64) {
	k.mu.Lock()
	e, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		return
	}

	<-e.sem
	k.drop(key, e)
}

// Size returns the number of keys currently tracked.
func (k *keyedMutex) Size() int64 {
	return k.size.Load()
}

// drop decrements the reference count for key and retires the entry
// when nobody holds or waits on it anymore.
func (k *keyedMutex) drop(key int64, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	delete(k.entries, key)
	k.size.Add(-1)
	e.reset()
	k.entryPool.Put(e)
}
