package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/pkg/metrics"
)

// Default store configuration constants.
const (
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 10
)

// SQLiteStore implements Store on an embedded sqlite database.
type SQLiteStore struct {
	db *sql.DB

	busyTimeout  time.Duration
	maxOpenConns int
	now          func() time.Time
}

// Open opens (creating if needed) the database at path and applies all
// pending schema migrations.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout:  defaultBusyTimeout,
		maxOpenConns: defaultMaxOpenConns,
		now:          time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s.db = db
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// ActiveRunnerByMinor resolves a tracker minor to an active runner.
func (s *SQLiteStore) ActiveRunnerByMinor(ctx context.Context, minor int64) (model.Runner, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds())) }()

	var r model.Runner
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, minor, name, status FROM runners WHERE minor = ? AND status = ?`,
		minor, string(model.StatusActive),
	).Scan(&r.ID, &r.Minor, &r.Name, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Runner{}, fmt.Errorf("%w: minor %d", ErrNotFound, minor)
	}
	if err != nil {
		return model.Runner{}, fmt.Errorf("query runner: %w", err)
	}
	r.Status = model.RunnerStatus(status)
	return r, nil
}

// LatestDetectionSince returns the most recent detection for minor at
// or after cutoff. Ordering is timestamp descending, one row.
func (s *SQLiteStore) LatestDetectionSince(ctx context.Context, minor int64, cutoff time.Time) (model.Detection, bool, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds())) }()

	var d model.Detection
	var detectedAt int64
	var rssi, battery sql.NullInt64
	var temp, hum sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, minor, detected_at, rssi, battery_level, temperature, humidity, checkpoint_id
		 FROM detections
		 WHERE minor = ? AND detected_at >= ?
		 ORDER BY detected_at DESC
		 LIMIT 1`,
		minor, cutoff.UnixNano(),
	).Scan(&d.ID, &d.Minor, &detectedAt, &rssi, &battery, &temp, &hum, &d.CheckpointID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Detection{}, false, nil
	}
	if err != nil {
		return model.Detection{}, false, fmt.Errorf("query detection: %w", err)
	}

	d.DetectedAt = time.Unix(0, detectedAt).UTC()
	d.RSSI = nullableInt(rssi)
	d.BatteryLevel = nullableInt(battery)
	d.Temperature = nullableFloat(temp)
	d.Humidity = nullableFloat(hum)
	return d, true, nil
}

// LatestLap returns the runner's most recent lap.
func (s *SQLiteStore) LatestLap(ctx context.Context, runnerID int64) (model.Lap, bool, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds())) }()

	var l model.Lap
	var lapTime int64
	var duration, rssi sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, runner_id, lap_time, lap_duration, rssi, checkpoint_id
		 FROM laps
		 WHERE runner_id = ?
		 ORDER BY lap_time DESC
		 LIMIT 1`,
		runnerID,
	).Scan(&l.ID, &l.RunnerID, &lapTime, &duration, &rssi, &l.CheckpointID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lap{}, false, nil
	}
	if err != nil {
		return model.Lap{}, false, fmt.Errorf("query lap: %w", err)
	}

	l.LapTime = time.Unix(0, lapTime).UTC()
	if duration.Valid {
		d := time.Duration(duration.Int64)
		l.LapDuration = &d
	}
	l.RSSI = nullableInt(rssi)
	return l, true, nil
}

// RecordLap appends the detection row and the lap row in one
// transaction. On any failure the transaction is rolled back and no
// partial write is visible.
func (s *SQLiteStore) RecordLap(ctx context.Context, obs model.Observation, lap model.Lap) (model.Lap, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreTxLatency(float64(time.Since(start).Milliseconds())) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Lap{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// ErrTxDone means the transaction was already committed.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			metrics.RecordStoreError("rollback")
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO detections (minor, detected_at, rssi, battery_level, temperature, humidity, checkpoint_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.Minor, obs.ObservedAt.UnixNano(),
		intArg(obs.RSSI), intArg(obs.BatteryLevel), floatArg(obs.Temperature), floatArg(obs.Humidity),
		lap.CheckpointID,
	)
	if err != nil {
		return model.Lap{}, fmt.Errorf("insert detection: %w", err)
	}

	var durationArg interface{}
	if lap.LapDuration != nil {
		durationArg = int64(*lap.LapDuration)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO laps (runner_id, lap_time, lap_duration, rssi, checkpoint_id)
		 VALUES (?, ?, ?, ?, ?)`,
		lap.RunnerID, lap.LapTime.UnixNano(), durationArg, intArg(lap.RSSI), lap.CheckpointID,
	)
	if err != nil {
		return model.Lap{}, fmt.Errorf("insert lap: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Lap{}, fmt.Errorf("lap id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Lap{}, fmt.Errorf("commit: %w", err)
	}

	lap.ID = id
	return lap, nil
}

// RunnerStats aggregates lap statistics for laps at or after since.
// First laps have no duration and are excluded from the fastest and
// average figures but still counted.
func (s *SQLiteStore) RunnerStats(ctx context.Context, runnerID int64, since time.Time) (model.LapStats, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds())) }()

	var count int
	var fastest, average sql.NullFloat64
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(lap_duration), AVG(lap_duration), MAX(lap_time)
		 FROM laps
		 WHERE runner_id = ? AND lap_time >= ?`,
		runnerID, since.UnixNano(),
	).Scan(&count, &fastest, &average, &last)
	if err != nil {
		return model.LapStats{}, fmt.Errorf("aggregate laps: %w", err)
	}

	out := model.LapStats{RunnerID: runnerID, LapCount: count}
	if fastest.Valid {
		d := time.Duration(int64(fastest.Float64))
		out.FastestLap = &d
	}
	if average.Valid {
		d := time.Duration(int64(average.Float64))
		out.AverageLap = &d
	}
	if last.Valid {
		t := time.Unix(0, last.Int64).UTC()
		out.LastLapTime = &t
	}
	return out, nil
}

// SeedRunner inserts a runner directory entry and returns its id.
func (s *SQLiteStore) SeedRunner(ctx context.Context, runner model.Runner) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runners (minor, name, status) VALUES (?, ?, ?)`,
		runner.Minor, runner.Name, string(runner.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("insert runner: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("runner id: %w", err)
	}
	return id, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intArg(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
