package beaconfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/lapline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestGenerateObservations(t *testing.T) {
	Convey("Given a feed configuration", t, func() {
		config := &Config{
			NumObservations: 200,
			Trackers:        5,
			FirstMinor:      1000,
		}
		stats := &Stats{}

		Convey("When observations are generated", func() {
			observations, err := generateObservations(context.Background(), config, stats)

			Convey("Then the batch should be complete", func() {
				So(err, ShouldBeNil)
				So(observations, ShouldHaveLength, 200)
				So(stats.ObservationsGenerated, ShouldEqual, 200)
			})

			Convey("Then minors should stay within the simulated range", func() {
				for _, obs := range observations {
					So(obs.Minor, ShouldBeGreaterThanOrEqualTo, 1000)
					So(obs.Minor, ShouldBeLessThan, 1005)
				}
			})

			Convey("Then sensor values should be plausible", func() {
				for _, obs := range observations {
					So(obs.RSSI, ShouldNotBeNil)
					So(*obs.RSSI, ShouldBeLessThan, 0)
					So(*obs.RSSI, ShouldBeGreaterThanOrEqualTo, -95)
					So(*obs.BatteryLevel, ShouldBeBetweenOrEqual, 20, 100)
					So(*obs.Humidity, ShouldBeBetweenOrEqual, 30.0, 90.0)
				}
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := generateObservations(ctx, config, stats)

			Convey("Then generation should stop with the context error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestHTTPPoster(t *testing.T) {
	Convey("Given a checkpoint that accepts observations", t, func() {
		var gotMinor, gotMethod, gotPath atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod.Store(r.Method)
			gotPath.Store(r.URL.Path)
			_ = r.ParseForm()
			gotMinor.Store(r.PostFormValue("minor"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"success","message":"Lap recorded"}`))
		}))
		defer srv.Close()

		poster := newHTTPPoster(srv.URL, time.Second)

		Convey("When an observation is posted", func() {
			err := poster.Post(context.Background(), generateSingleObservation(1042))

			Convey("Then it should be delivered as form data", func() {
				So(err, ShouldBeNil)
				So(gotMethod.Load(), ShouldEqual, http.MethodPost)
				So(gotPath.Load(), ShouldEqual, "/detections")
				So(gotMinor.Load(), ShouldEqual, "1042")
			})

			Convey("Then the success counter should advance", func() {
				stats := &Stats{}
				poster.snapshot(stats)
				So(stats.ObservationsPosted, ShouldEqual, 1)
				So(stats.LapsRecorded, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a checkpoint that debounces everything", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ignored","message":"Signal debounced"}`))
		}))
		defer srv.Close()

		poster := newHTTPPoster(srv.URL, time.Second)

		Convey("When an observation is posted", func() {
			So(poster.Post(context.Background(), generateSingleObservation(7)), ShouldBeNil)

			Convey("Then it should be counted as debounced", func() {
				stats := &Stats{}
				poster.snapshot(stats)
				So(stats.Debounced, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a checkpoint that is failing", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		poster := newHTTPPoster(srv.URL, time.Second)

		Convey("When an observation is posted", func() {
			err := poster.Post(context.Background(), generateSingleObservation(7))

			Convey("Then the post should report a delivery error", func() {
				So(err, ShouldNotBeNil)
				stats := &Stats{}
				poster.snapshot(stats)
				So(stats.ObservationsPosted, ShouldEqual, 0)
			})
		})
	})
}
