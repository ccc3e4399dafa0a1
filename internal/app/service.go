// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lapline/internal/adapters/repository"
	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/internal/domain/signal"
	"github.com/okian/lapline/internal/domain/stats"
	"github.com/okian/lapline/internal/domain/tracklock"
	"github.com/okian/lapline/internal/domain/types"
	"github.com/okian/lapline/internal/domain/validate"
	"github.com/okian/lapline/pkg/logger"
	"github.com/okian/lapline/pkg/metrics"
)

// Outcome context tags surfaced to callers and used as metric labels.
const (
	reasonInvalidInput  = types.ContextInvalidInput
	reasonWeakSignal    = types.ContextWeakSignal
	reasonUnknownRunner = types.ContextUnknownRunner
	reasonLapTooShort   = types.ContextLapTooShort
	reasonSystemError   = types.ContextSystemError
)

// Service implements the detection processor for one checkpoint.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	validator validate.Validator
	locks     tracklock.Keyed
	stats     stats.Aggregator

	// Configuration
	dbPath         string
	checkpointID   int64
	debounceWindow time.Duration
	minLap         time.Duration
	maxLap         time.Duration
	rssiThreshold  int
	signalVariance int
	statsTTL       time.Duration
	now            func() time.Time

	// Request counters for the stats endpoint
	observations atomic.Int64
	lapsRecorded atomic.Int64
	ignored      atomic.Int64
	rejected     atomic.Int64

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDBPath sets the sqlite database file opened at Start.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithStore injects a store, bypassing the sqlite open at Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCheckpointID sets the checkpoint identity stamped on every row.
func WithCheckpointID(id int64) Option {
	return func(s *Service) {
		if id > 0 {
			s.checkpointID = id
		}
	}
}

// WithDebounceWindow sets the same-tracker debounce interval.
func WithDebounceWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.debounceWindow = window
		}
	}
}

// WithLapBounds sets the plausible lap duration range.
func WithLapBounds(minLap, maxLap time.Duration) Option {
	return func(s *Service) {
		if minLap > 0 && maxLap > minLap {
			s.minLap = minLap
			s.maxLap = maxLap
		}
	}
}

// WithSignalQuality sets the RSSI threshold and variance band.
func WithSignalQuality(thresholdDBm, variance int) Option {
	return func(s *Service) {
		if thresholdDBm < 0 {
			s.rssiThreshold = thresholdDBm
		}
		if variance >= 0 {
			s.signalVariance = variance
		}
	}
}

// WithStatsTTL bounds staleness of the statistics cache.
func WithStatsTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.statsTTL = ttl
		}
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:         "lapline.db",
		checkpointID:   1,
		debounceWindow: 5 * time.Second,
		minLap:         30 * time.Second,
		maxLap:         600 * time.Second,
		rssiThreshold:  -75,
		signalVariance: 5,
		statsTTL:       300 * time.Second,
		now:            time.Now,
		logger:         nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting checkpoint service...")

	if s.store == nil {
		store, err := repository.Open(s.dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
	}

	s.locks = tracklock.NewKeyed()
	s.stats = stats.NewCachedAggregator(s.store,
		stats.WithTTL(s.statsTTL),
		stats.WithClock(s.now),
	)
	s.validator = validate.NewInputValidator(
		validate.WithEvaluator(signal.NewThresholdEvaluator(
			signal.WithThreshold(s.rssiThreshold),
			signal.WithVariance(s.signalVariance),
		)),
		validate.WithClock(s.now),
	)

	s.started = true
	s.logger.Info(ctx, "checkpoint service started",
		logger.Int64("checkpointID", s.checkpointID),
		logger.Duration("debounceWindow", s.debounceWindow),
		logger.Duration("minLap", s.minLap),
		logger.Duration("maxLap", s.maxLap),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping checkpoint service...")

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(context.Background(), "store close failed", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "checkpoint service stopped")
}

// ProcessDetection runs one observation through validation, runner
// resolution, and the debounce/lap decision procedure. Every path
// returns a well-formed outcome; failures never escape as panics.
func (s *Service) ProcessDetection(ctx context.Context, raw validate.Raw) types.Outcome {
	metrics.RecordObservation()
	s.observations.Add(1)

	obs, err := s.validator.Normalize(ctx, raw)
	if err != nil {
		return s.rejectValidation(ctx, err)
	}

	runner, err := s.store.ActiveRunnerByMinor(ctx, obs.Minor)
	if err != nil {
		if isNotFound(err) {
			s.rejected.Add(1)
			metrics.RecordRejection(reasonUnknownRunner)
			return types.Outcome{
				Status:  types.StatusError,
				Message: fmt.Sprintf("no active runner for tracker %d", obs.Minor),
				Context: reasonUnknownRunner,
			}
		}
		return s.systemError(ctx, "runner lookup failed", err)
	}

	// Serialize the check-then-insert sequence per tracker. Two
	// near-simultaneous detections must not both pass the debounce
	// check and double-insert a lap.
	if err := s.locks.Acquire(ctx, obs.Minor); err != nil {
		return s.systemError(ctx, "tracker lock acquisition failed", err)
	}
	defer func() {
		s.locks.Release(obs.Minor)
		metrics.UpdateTrackedTrackers(s.locks.Size())
	}()
	metrics.UpdateTrackedTrackers(s.locks.Size())

	_, found, err := s.store.LatestDetectionSince(ctx, obs.Minor, obs.ObservedAt.Add(-s.debounceWindow))
	if err != nil {
		return s.systemError(ctx, "debounce query failed", err)
	}
	if found {
		// Continued presence of the same tracker; discarded entirely,
		// no write of any kind.
		s.ignored.Add(1)
		metrics.RecordDuplicateIgnored()
		s.logger.Debug(ctx, "signal debounced", logger.Int64("minor", obs.Minor))
		return types.Outcome{Status: types.StatusIgnored, Message: "Signal debounced"}
	}

	lastLap, hasLap, err := s.store.LatestLap(ctx, runner.ID)
	if err != nil {
		return s.systemError(ctx, "lap lookup failed", err)
	}

	var lapDuration *time.Duration
	var suspect bool
	if hasLap {
		elapsed := obs.ObservedAt.Sub(lastLap.LapTime)
		if elapsed < s.minLap {
			s.rejected.Add(1)
			metrics.RecordRejection(reasonLapTooShort)
			return types.Outcome{
				Status:  types.StatusError,
				Message: fmt.Sprintf("lap of %.1fs below minimum %.0fs", elapsed.Seconds(), s.minLap.Seconds()),
				Context: reasonLapTooShort,
			}
		}
		// Too long never blocks recording; the lap is only flagged.
		if elapsed > s.maxLap {
			suspect = true
			metrics.RecordSuspectLap()
			s.logger.Warn(ctx, "lap above plausible maximum",
				logger.Int64("runnerID", runner.ID),
				logger.Duration("elapsed", elapsed),
			)
		}
		lapDuration = &elapsed
	}

	lap := model.Lap{
		RunnerID:     runner.ID,
		LapTime:      obs.ObservedAt,
		LapDuration:  lapDuration,
		RSSI:         obs.RSSI,
		CheckpointID: s.checkpointID,
	}
	recorded, err := s.store.RecordLap(ctx, obs, lap)
	if err != nil {
		return s.systemError(ctx, "lap commit failed", err)
	}

	s.lapsRecorded.Add(1)
	metrics.RecordLapRecorded()
	s.stats.Invalidate(runner.ID)

	out := types.Outcome{
		Status:  types.StatusSuccess,
		Message: "Lap recorded",
		Runner:  &types.RunnerInfo{ID: runner.ID, Name: runner.Name},
		Suspect: suspect,
	}
	if recorded.LapDuration != nil {
		secs := recorded.LapDuration.Seconds()
		out.LapDurationSeconds = &secs
	} else {
		out.Message = "First lap recorded"
	}

	if st, err := s.stats.StatsForRunner(ctx, runner.ID); err != nil {
		// Statistics are best-effort decoration on a success response.
		s.logger.Warn(ctx, "stats aggregation failed",
			logger.Int64("runnerID", runner.ID), logger.Error(err))
	} else {
		out.Stats = shapeStats(st)
	}

	return out
}

// RunnerStatsByMinor serves the read-only statistics endpoint.
func (s *Service) RunnerStatsByMinor(ctx context.Context, minor int64) (types.RunnerInfo, types.StatsInfo, error) {
	runner, err := s.store.ActiveRunnerByMinor(ctx, minor)
	if err != nil {
		return types.RunnerInfo{}, types.StatsInfo{}, err
	}
	st, err := s.stats.StatsForRunner(ctx, runner.ID)
	if err != nil {
		return types.RunnerInfo{}, types.StatsInfo{}, err
	}
	return types.RunnerInfo{ID: runner.ID, Name: runner.Name}, *shapeStats(st), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]interface{}{
		"started":               s.started,
		"checkpointID":          s.checkpointID,
		"debounceWindowSeconds": s.debounceWindow.Seconds(),
		"observations":          s.observations.Load(),
		"lapsRecorded":          s.lapsRecorded.Load(),
		"ignored":               s.ignored.Load(),
		"rejected":              s.rejected.Load(),
	}
	if s.locks != nil {
		out["trackedTrackers"] = s.locks.Size()
	}
	return out
}

// rejectValidation maps validator failures onto error outcomes.
func (s *Service) rejectValidation(ctx context.Context, err error) types.Outcome {
	s.rejected.Add(1)

	reason := reasonInvalidInput
	if isWeakSignal(err) {
		reason = reasonWeakSignal
	}
	metrics.RecordRejection(reason)
	s.logger.Debug(ctx, "observation rejected", logger.String("reason", reason), logger.Error(err))

	return types.Outcome{
		Status:  types.StatusError,
		Message: err.Error(),
		Context: reason,
	}
}

// systemError logs full detail and returns a generic outcome. Internal
// detail never leaks to the caller.
func (s *Service) systemError(ctx context.Context, msg string, err error) types.Outcome {
	metrics.RecordRejection(reasonSystemError)
	metrics.RecordErrorByComponent("service", reasonSystemError)
	s.logger.Error(ctx, msg, logger.Error(err))
	return types.Outcome{
		Status:  types.StatusError,
		Message: "internal error, observation not recorded",
		Context: reasonSystemError,
	}
}

// shapeStats converts store statistics into the response shape, with
// durations in seconds.
func shapeStats(st model.LapStats) *types.StatsInfo {
	out := &types.StatsInfo{LapCount: st.LapCount}
	if st.FastestLap != nil {
		v := st.FastestLap.Seconds()
		out.FastestLapSeconds = &v
	}
	if st.AverageLap != nil {
		v := st.AverageLap.Seconds()
		out.AverageLapSeconds = &v
	}
	if st.LastLapTime != nil {
		v := st.LastLapTime.UTC().Format(time.RFC3339)
		out.LastLapTime = &v
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

func isWeakSignal(err error) bool {
	return errors.Is(err, validate.ErrWeakSignal)
}
