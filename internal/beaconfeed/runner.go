package beaconfeed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/lapline/internal/adapters/mq/queue"
	"github.com/okian/lapline/internal/adapters/mq/worker"
	"github.com/okian/lapline/pkg/logger"
)

// Feed pacing constants.
const (
	drainPollInterval    = 100 * time.Millisecond
	percentageMultiplier = 100
)

// Run executes the complete beacon feed.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}
	sessionID := uuid.New().String()

	if config.Verbose {
		_ = logger.SetLevelString("debug")
	}

	logger.Get().Info(ctx, "starting beacon feed",
		logger.String("sessionID", sessionID),
		logger.String("baseURL", config.BaseURL),
		logger.Int("observations", config.NumObservations),
		logger.Int("trackers", config.Trackers),
		logger.Int("workers", config.Workers),
		logger.String("interval", config.Interval.String()),
		logger.String("timeout", config.Timeout.String()))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate observations
	observations, err := generateObservations(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("observation generation failed: %w", err)
	}

	// Step 3: Feed observations through the queue to posting workers
	poster := newHTTPPoster(config.BaseURL, config.Timeout)
	q := queue.NewInMemoryQueue(
		queue.WithCapacity(config.NumObservations),
		queue.WithBufferSize(config.NumObservations),
	)
	pool := worker.NewPool(config.Workers, q, poster)
	pool.Start(ctx)

	for i := range observations {
		if config.Interval > 0 && i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("feed interrupted: %w", ctx.Err())
			case <-time.After(config.Interval):
			}
		}
		if !q.Enqueue(ctx, observations[i]) {
			logger.Get().Warn(ctx, "queue rejected observation",
				logger.Int64("minor", observations[i].Minor))
		}
	}

	// Step 4: Drain the queue and shut the pool down
	if err := waitForDrain(ctx, q); err != nil {
		return err
	}
	if err := pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("worker pool shutdown failed: %w", err)
	}

	// Final statistics
	poster.snapshot(stats)
	stats.Failed = stats.ObservationsGenerated - stats.ObservationsPosted
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "feed completed", logger.String("sessionID", sessionID))
	return nil
}

// checkServiceHealth verifies the checkpoint is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := &http.Client{Timeout: config.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != statusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// waitForDrain blocks until the queue is empty or ctx expires.
func waitForDrain(ctx context.Context, q queue.Queue) error {
	for q.Len(ctx) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain interrupted: %w", ctx.Err())
		case <-time.After(drainPollInterval):
		}
	}
	return nil
}

// displayFinalStats prints the final feed statistics.
func displayFinalStats(stats *Stats) {
	var deliveryRate, observationsPerSecond float64

	if stats.ObservationsGenerated > 0 {
		deliveryRate = float64(stats.ObservationsPosted) / float64(stats.ObservationsGenerated) * percentageMultiplier
	}
	if stats.Duration > 0 {
		observationsPerSecond = float64(stats.ObservationsPosted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("observationsGenerated", stats.ObservationsGenerated),
		logger.Int("observationsPosted", stats.ObservationsPosted),
		logger.Int("lapsRecorded", stats.LapsRecorded),
		logger.Int("debounced", stats.Debounced),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("deliveryRate", deliveryRate),
		logger.Float64("observationsPerSecond", observationsPerSecond))
}
