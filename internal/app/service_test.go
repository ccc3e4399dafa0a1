package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/lapline/internal/adapters/repository"
	service "github.com/okian/lapline/internal/app"
	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/internal/domain/types"
	"github.com/okian/lapline/internal/domain/validate"
	"github.com/okian/lapline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

// fakeStore is an in-memory Store with the same visibility semantics
// as the sqlite implementation: a lap and its detection appear together
// or not at all.
type fakeStore struct {
	mu         sync.Mutex
	runners    map[int64]model.Runner // keyed by minor
	detections []model.Detection
	laps       []model.Lap
	nextLapID  int64

	recordErr error
	lookupErr error
	closed    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{runners: make(map[int64]model.Runner), nextLapID: 1}
}

func (f *fakeStore) addRunner(id, minor int64, name string) {
	f.runners[minor] = model.Runner{ID: id, Minor: minor, Name: name, Status: model.StatusActive}
}

func (f *fakeStore) ActiveRunnerByMinor(ctx context.Context, minor int64) (model.Runner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return model.Runner{}, f.lookupErr
	}
	r, ok := f.runners[minor]
	if !ok || r.Status != model.StatusActive {
		return model.Runner{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) LatestDetectionSince(ctx context.Context, minor int64, cutoff time.Time) (model.Detection, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest model.Detection
	var found bool
	for _, d := range f.detections {
		if d.Minor != minor || d.DetectedAt.Before(cutoff) {
			continue
		}
		if !found || d.DetectedAt.After(latest.DetectedAt) {
			latest, found = d, true
		}
	}
	return latest, found, nil
}

func (f *fakeStore) LatestLap(ctx context.Context, runnerID int64) (model.Lap, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest model.Lap
	var found bool
	for _, l := range f.laps {
		if l.RunnerID != runnerID {
			continue
		}
		if !found || l.LapTime.After(latest.LapTime) {
			latest, found = l, true
		}
	}
	return latest, found, nil
}

func (f *fakeStore) RecordLap(ctx context.Context, obs model.Observation, lap model.Lap) (model.Lap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return model.Lap{}, f.recordErr
	}
	f.detections = append(f.detections, model.Detection{
		Minor:        obs.Minor,
		DetectedAt:   obs.ObservedAt,
		RSSI:         obs.RSSI,
		CheckpointID: lap.CheckpointID,
	})
	lap.ID = f.nextLapID
	f.nextLapID++
	f.laps = append(f.laps, lap)
	return lap, nil
}

func (f *fakeStore) RunnerStats(ctx context.Context, runnerID int64, since time.Time) (model.LapStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := model.LapStats{RunnerID: runnerID}
	for _, l := range f.laps {
		if l.RunnerID != runnerID || l.LapTime.Before(since) {
			continue
		}
		out.LapCount++
		t := l.LapTime
		if out.LastLapTime == nil || t.After(*out.LastLapTime) {
			out.LastLapTime = &t
		}
		if l.LapDuration != nil {
			d := *l.LapDuration
			if out.FastestLap == nil || d < *out.FastestLap {
				out.FastestLap = &d
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SeedRunner(ctx context.Context, runner model.Runner) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.runners) + 1)
	runner.ID = id
	f.runners[runner.Minor] = runner
	return id, nil
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStore) lapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.laps)
}

func (f *fakeStore) detectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detections)
}

// testService builds a started service over the fake store with a
// controllable clock.
func testService(t *testing.T, store *fakeStore, now *time.Time, opts ...service.Option) *service.Service {
	t.Helper()
	base := []service.Option{
		service.WithStore(store),
		service.WithClock(func() time.Time { return *now }),
		service.WithDebounceWindow(5 * time.Second),
		service.WithLapBounds(30*time.Second, 600*time.Second),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestProcessDetection(t *testing.T) {
	Convey("Given a checkpoint service over a seeded store", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
		store := newFakeStore()
		store.addRunner(1, 1042, "Asha")
		svc := testService(t, store, &now)

		obs := validate.Raw{Minor: "1042", RSSI: "-60"}

		Convey("When the first observation for a runner arrives", func() {
			out := svc.ProcessDetection(ctx, obs)

			Convey("Then a first lap should be recorded", func() {
				So(out.Status, ShouldEqual, types.StatusSuccess)
				So(out.Message, ShouldEqual, "First lap recorded")
				So(out.Runner.Name, ShouldEqual, "Asha")
				So(out.LapDurationSeconds, ShouldBeNil)
				So(out.Suspect, ShouldBeFalse)
				So(store.lapCount(), ShouldEqual, 1)
			})

			Convey("Then statistics should be merged into the response", func() {
				So(out.Stats, ShouldNotBeNil)
				So(out.Stats.LapCount, ShouldEqual, 1)
			})
		})

		Convey("When the same tracker is seen again inside the debounce window", func() {
			So(svc.ProcessDetection(ctx, obs).Status, ShouldEqual, types.StatusSuccess)
			now = now.Add(2 * time.Second)
			out := svc.ProcessDetection(ctx, obs)

			Convey("Then the observation should be discarded entirely", func() {
				So(out.Status, ShouldEqual, types.StatusIgnored)
				So(out.Message, ShouldEqual, "Signal debounced")
				So(store.lapCount(), ShouldEqual, 1)
				So(store.detectionCount(), ShouldEqual, 1)
			})
		})

		Convey("When the next pass comes after the debounce window but below the minimum lap", func() {
			So(svc.ProcessDetection(ctx, obs).Status, ShouldEqual, types.StatusSuccess)
			now = now.Add(10 * time.Second)
			out := svc.ProcessDetection(ctx, obs)

			Convey("Then the lap should be rejected as too short", func() {
				So(out.Status, ShouldEqual, types.StatusError)
				So(out.Context, ShouldEqual, types.ContextLapTooShort)
				So(store.lapCount(), ShouldEqual, 1)
			})
		})

		Convey("When a plausible lap completes", func() {
			So(svc.ProcessDetection(ctx, obs).Status, ShouldEqual, types.StatusSuccess)
			now = now.Add(95 * time.Second)
			out := svc.ProcessDetection(ctx, obs)

			Convey("Then the lap should carry its duration", func() {
				So(out.Status, ShouldEqual, types.StatusSuccess)
				So(out.Message, ShouldEqual, "Lap recorded")
				So(*out.LapDurationSeconds, ShouldEqual, 95.0)
				So(out.Suspect, ShouldBeFalse)
				So(store.lapCount(), ShouldEqual, 2)
			})
		})

		Convey("When the elapsed time exceeds the plausible maximum", func() {
			So(svc.ProcessDetection(ctx, obs).Status, ShouldEqual, types.StatusSuccess)
			now = now.Add(700 * time.Second)
			out := svc.ProcessDetection(ctx, obs)

			Convey("Then the lap should still be recorded but flagged", func() {
				So(out.Status, ShouldEqual, types.StatusSuccess)
				So(out.Suspect, ShouldBeTrue)
				So(store.lapCount(), ShouldEqual, 2)
			})
		})

		Convey("When the tracker has no active runner", func() {
			out := svc.ProcessDetection(ctx, validate.Raw{Minor: "9999", RSSI: "-60"})

			Convey("Then the observation should be rejected", func() {
				So(out.Status, ShouldEqual, types.StatusError)
				So(out.Context, ShouldEqual, types.ContextUnknownRunner)
				So(store.lapCount(), ShouldEqual, 0)
			})
		})

		Convey("When the signal is below the threshold", func() {
			out := svc.ProcessDetection(ctx, validate.Raw{Minor: "1042", RSSI: "-90"})

			Convey("Then the observation should be rejected before any store access", func() {
				So(out.Status, ShouldEqual, types.StatusError)
				So(out.Context, ShouldEqual, types.ContextWeakSignal)
				So(store.lapCount(), ShouldEqual, 0)
				So(store.detectionCount(), ShouldEqual, 0)
			})
		})

		Convey("When the minor is malformed", func() {
			out := svc.ProcessDetection(ctx, validate.Raw{Minor: "abc"})

			Convey("Then the observation should be rejected as invalid input", func() {
				So(out.Status, ShouldEqual, types.StatusError)
				So(out.Context, ShouldEqual, types.ContextInvalidInput)
			})
		})

		Convey("When the store fails during recording", func() {
			store.recordErr = errors.New("disk full: /var/lib/lapline")
			out := svc.ProcessDetection(ctx, obs)

			Convey("Then the caller should get a generic error", func() {
				So(out.Status, ShouldEqual, types.StatusError)
				So(out.Context, ShouldEqual, types.ContextSystemError)
				So(out.Message, ShouldNotContainSubstring, "disk full")
				So(out.Message, ShouldNotContainSubstring, "/var/lib")
			})
		})

		Convey("When service counters are read", func() {
			So(svc.ProcessDetection(ctx, obs).Status, ShouldEqual, types.StatusSuccess)
			now = now.Add(2 * time.Second)
			So(svc.ProcessDetection(ctx, obs).Status, ShouldEqual, types.StatusIgnored)
			So(svc.ProcessDetection(ctx, validate.Raw{Minor: "9999"}).Status, ShouldEqual, types.StatusError)

			stats := svc.GetStats()

			Convey("Then they should reflect the traffic", func() {
				So(stats["observations"], ShouldEqual, 3)
				So(stats["lapsRecorded"], ShouldEqual, 1)
				So(stats["ignored"], ShouldEqual, 1)
				So(stats["rejected"], ShouldEqual, 1)
			})
		})
	})
}

func TestConcurrentSameTracker(t *testing.T) {
	Convey("Given near-simultaneous observations for one tracker", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
		store := newFakeStore()
		store.addRunner(1, 1042, "Asha")
		svc := testService(t, store, &now)

		Convey("When many goroutines post the same tracker at once", func() {
			const goroutines = 16
			results := make([]types.Status, goroutines)
			var wg sync.WaitGroup
			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func(i int) {
					defer wg.Done()
					out := svc.ProcessDetection(ctx, validate.Raw{Minor: "1042", RSSI: "-60"})
					results[i] = out.Status
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one lap should be recorded", func() {
				So(store.lapCount(), ShouldEqual, 1)
				var successes, ignored int
				for _, s := range results {
					switch s {
					case types.StatusSuccess:
						successes++
					case types.StatusIgnored:
						ignored++
					}
				}
				So(successes, ShouldEqual, 1)
				So(ignored, ShouldEqual, goroutines-1)
			})
		})
	})
}

func TestRunnerStatsByMinor(t *testing.T) {
	Convey("Given a service with recorded laps", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
		store := newFakeStore()
		store.addRunner(1, 1042, "Asha")
		svc := testService(t, store, &now)

		So(svc.ProcessDetection(ctx, validate.Raw{Minor: "1042"}).Status, ShouldEqual, types.StatusSuccess)
		now = now.Add(120 * time.Second)
		So(svc.ProcessDetection(ctx, validate.Raw{Minor: "1042"}).Status, ShouldEqual, types.StatusSuccess)

		Convey("When statistics are fetched by minor", func() {
			runner, stats, err := svc.RunnerStatsByMinor(ctx, 1042)

			Convey("Then the runner and fresh statistics should return", func() {
				So(err, ShouldBeNil)
				So(runner.Name, ShouldEqual, "Asha")
				So(stats.LapCount, ShouldEqual, 2)
				So(*stats.FastestLapSeconds, ShouldEqual, 120.0)
			})
		})

		Convey("When the minor is unknown", func() {
			_, _, err := svc.RunnerStatsByMinor(ctx, 9999)

			Convey("Then ErrNotFound should surface", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
