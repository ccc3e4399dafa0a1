// Package repository defines the persistent log store interface and errors.
//
// The store owns three tables: the runner directory, the append-only
// detection log, and the append-only lap log. The detection processor
// never mutates or deletes rows it has written.
package repository

import (
	"context"
	"time"

	"github.com/okian/lapline/internal/domain/model"
)

// Store provides read/write access to the persistent race log.
type Store interface {
	// ActiveRunnerByMinor resolves a tracker minor to an active runner.
	// Returns ErrNotFound when no active runner matches.
	ActiveRunnerByMinor(ctx context.Context, minor int64) (model.Runner, error)

	// LatestDetectionSince returns the most recent detection for minor
	// at or after cutoff. The second return reports whether one exists.
	LatestDetectionSince(ctx context.Context, minor int64, cutoff time.Time) (model.Detection, bool, error)

	// LatestLap returns the runner's most recent lap. The second return
	// reports whether the runner has any laps.
	LatestLap(ctx context.Context, runnerID int64) (model.Lap, bool, error)

	// RecordLap atomically appends the detection row and the lap row in
	// one transaction. Nothing is written if either insert fails.
	RecordLap(ctx context.Context, obs model.Observation, lap model.Lap) (model.Lap, error)

	// RunnerStats aggregates lap statistics for laps at or after since.
	RunnerStats(ctx context.Context, runnerID int64, since time.Time) (model.LapStats, error)

	// SeedRunner inserts a runner directory entry and returns its id.
	// Provisioning helper; the request path treats the directory as
	// read-only.
	SeedRunner(ctx context.Context, runner model.Runner) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}
