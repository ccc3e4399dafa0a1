// Package stats aggregates per-runner lap statistics with a small
// staleness-tolerant cache in front of the store.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/pkg/metrics"
)

// Default aggregator configuration constants.
const (
	defaultTTL    = 300 * time.Second
	defaultWindow = 24 * time.Hour
)

// Source is the read side the aggregator queries. The repository
// implements it.
type Source interface {
	// RunnerStats computes lap statistics for laps at or after since.
	RunnerStats(ctx context.Context, runnerID int64, since time.Time) (model.LapStats, error)
}

// Aggregator serves trailing-window statistics for a runner.
type Aggregator interface {
	// StatsForRunner returns the runner's statistics, possibly up to
	// the configured TTL stale.
	StatsForRunner(ctx context.Context, runnerID int64) (model.LapStats, error)

	// Invalidate discards any cached value for the runner, forcing the
	// next read through to the source.
	Invalidate(runnerID int64)
}

type cacheEntry struct {
	stats    model.LapStats
	cachedAt time.Time
}

// CachedAggregator implements Aggregator with a TTL map cache.
type CachedAggregator struct {
	source Source
	ttl    time.Duration
	window time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[int64]cacheEntry
}

// Option applies a configuration option to the CachedAggregator.
type Option func(*CachedAggregator)

// WithTTL sets how long a cached value may be served.
func WithTTL(ttl time.Duration) Option {
	return func(a *CachedAggregator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithWindow sets the trailing window statistics cover.
func WithWindow(window time.Duration) Option {
	return func(a *CachedAggregator) {
		if window > 0 {
			a.window = window
		}
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *CachedAggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewCachedAggregator creates a new aggregator with configuration options.
func NewCachedAggregator(source Source, opts ...Option) *CachedAggregator {
	a := &CachedAggregator{
		source: source,
		ttl:    defaultTTL,
		window: defaultWindow,
		now:    time.Now,
		cache:  make(map[int64]cacheEntry),
	}

	// Apply all options
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// StatsForRunner returns the runner's statistics, serving from cache
// while the entry is fresh.
func (a *CachedAggregator) StatsForRunner(ctx context.Context, runnerID int64) (model.LapStats, error) {
	now := a.now()

	a.mu.RLock()
	entry, ok := a.cache[runnerID]
	a.mu.RUnlock()
	if ok && now.Sub(entry.cachedAt) < a.ttl {
		metrics.RecordStatsCacheHit()
		return entry.stats, nil
	}

	metrics.RecordStatsCacheMiss()
	stats, err := a.source.RunnerStats(ctx, runnerID, now.Add(-a.window))
	if err != nil {
		return model.LapStats{}, err
	}

	a.mu.Lock()
	a.cache[runnerID] = cacheEntry{stats: stats, cachedAt: now}
	a.mu.Unlock()

	return stats, nil
}

// Invalidate discards any cached value for the runner.
func (a *CachedAggregator) Invalidate(runnerID int64) {
	a.mu.Lock()
	delete(a.cache, runnerID)
	a.mu.Unlock()
}
