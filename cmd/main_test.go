package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/lapline/internal/adapters/http/api"
	"github.com/okian/lapline/internal/adapters/http/site"
	"github.com/okian/lapline/internal/adapters/http/swagger"
	service "github.com/okian/lapline/internal/app"
	"github.com/okian/lapline/internal/config"
	"github.com/okian/lapline/internal/domain/types"
	"github.com/okian/lapline/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestConfigurationLoading(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When loading configuration from the environment", func() {
			_ = os.Setenv("LAPLINE_ADDR", ":8080")
			_ = os.Setenv("LAPLINE_CHECKPOINT_ID", "3")
			_ = os.Setenv("LAPLINE_DEBOUNCE_WINDOW_SECONDS", "7")
			defer func() {
				_ = os.Unsetenv("LAPLINE_ADDR")
				_ = os.Unsetenv("LAPLINE_CHECKPOINT_ID")
				_ = os.Unsetenv("LAPLINE_DEBOUNCE_WINDOW_SECONDS")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CheckpointID, convey.ShouldEqual, 3)
				convey.So(cfg.DebounceWindowSeconds, convey.ShouldEqual, 7)
			})
		})
	})
}

func TestServerWiring(t *testing.T) {
	convey.Convey("Given a fully wired checkpoint server", t, func() {
		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "lapline.db")

		svc := service.New(
			service.WithDBPath(dbPath),
			service.WithDebounceWindow(5*time.Second),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		site.Register(ctx, mux)
		swagger.Register(ctx, mux)
		api.NewServer(svc, svc).Register(ctx, mux)

		convey.Convey("When the metrics endpoint is hit", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should respond with metrics", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When an observation for an unknown tracker is posted", func() {
			form := url.Values{"minor": {"4242"}, "rssi": {"-60"}}
			req := httptest.NewRequest(http.MethodPost, "/detections", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should be rejected as unknown_runner", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				var out types.Outcome
				convey.So(json.NewDecoder(rec.Body).Decode(&out), convey.ShouldBeNil)
				convey.So(out.Status, convey.ShouldEqual, types.StatusError)
				convey.So(out.Context, convey.ShouldEqual, types.ContextUnknownRunner)
			})
		})

		convey.Convey("When the status page is requested", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should serve HTML", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Header().Get("Content-Type"), convey.ShouldContainSubstring, "text/html")
			})
		})
	})
}
