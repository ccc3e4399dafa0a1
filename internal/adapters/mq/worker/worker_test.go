package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/lapline/internal/adapters/mq/queue"
	"github.com/okian/lapline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

// recordingPoster records delivered observations, failing the first
// failCount attempts per observation.
type recordingPoster struct {
	mu        sync.Mutex
	delivered []Observation
	attempts  map[int64]int
	failCount int
	failAll   bool
}

func newRecordingPoster() *recordingPoster {
	return &recordingPoster{attempts: make(map[int64]int)}
}

func (p *recordingPoster) Post(ctx context.Context, o Observation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[o.Minor]++
	if p.failAll || p.attempts[o.Minor] <= p.failCount {
		return errors.New("connection refused")
	}
	p.delivered = append(p.delivered, o)
	return nil
}

func (p *recordingPoster) deliveredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delivered)
}

func (p *recordingPoster) attemptsFor(minor int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[minor]
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPostingWorker(t *testing.T) {
	Convey("Given a posting worker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithBufferSize(100))
		defer func() { _ = q.Close() }()

		Convey("When observations are queued", func() {
			poster := newRecordingPoster()
			w := NewPostingWorker(q, poster, WithName("test-worker"))
			go w.Run(ctx)

			So(q.Enqueue(ctx, Observation{Minor: 1, ObservedAt: time.Now()}), ShouldBeTrue)
			So(q.Enqueue(ctx, Observation{Minor: 2, ObservedAt: time.Now()}), ShouldBeTrue)

			Convey("Then they should all be delivered", func() {
				So(waitFor(func() bool { return poster.deliveredCount() == 2 }, 2*time.Second), ShouldBeTrue)
				_ = w.Shutdown(context.Background())
			})
		})

		Convey("When the first attempts fail", func() {
			poster := newRecordingPoster()
			poster.failCount = 2
			w := NewPostingWorker(q, poster,
				WithRetries(3),
				WithBackoff(time.Millisecond),
			)
			go w.Run(ctx)

			So(q.Enqueue(ctx, Observation{Minor: 7, ObservedAt: time.Now()}), ShouldBeTrue)

			Convey("Then delivery should succeed after retrying", func() {
				So(waitFor(func() bool { return poster.deliveredCount() == 1 }, 2*time.Second), ShouldBeTrue)
				So(poster.attemptsFor(7), ShouldEqual, 3)
				_ = w.Shutdown(context.Background())
			})
		})

		Convey("When every attempt fails", func() {
			poster := newRecordingPoster()
			poster.failAll = true
			w := NewPostingWorker(q, poster,
				WithRetries(1),
				WithBackoff(time.Millisecond),
			)
			go w.Run(ctx)

			So(q.Enqueue(ctx, Observation{Minor: 9, ObservedAt: time.Now()}), ShouldBeTrue)

			Convey("Then the worker should give up after the retry budget", func() {
				So(waitFor(func() bool { return poster.attemptsFor(9) == 2 }, 2*time.Second), ShouldBeTrue)
				So(poster.deliveredCount(), ShouldEqual, 0)
				_ = w.Shutdown(context.Background())
			})
		})

		Convey("When the worker is shut down", func() {
			poster := newRecordingPoster()
			w := NewPostingWorker(q, poster)
			go w.Run(ctx)

			Convey("Then shutdown should complete promptly", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				So(w.Shutdown(shutdownCtx), ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a worker pool", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithBufferSize(100))
		poster := newRecordingPoster()

		Convey("When the pool drains the queue", func() {
			pool := NewPool(4, q, poster)
			pool.Start(ctx)

			for i := int64(1); i <= 20; i++ {
				So(q.Enqueue(ctx, Observation{Minor: i, ObservedAt: time.Now()}), ShouldBeTrue)
			}

			Convey("Then every observation should be delivered", func() {
				So(waitFor(func() bool { return poster.deliveredCount() == 20 }, 3*time.Second), ShouldBeTrue)
				So(pool.Shutdown(context.Background()), ShouldBeNil)
			})
		})
	})
}
