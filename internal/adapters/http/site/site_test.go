package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given the status site", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		Convey("When registering the site handler", func() {
			Register(ctx, mux)

			Convey("Then it should serve the status page at root", func() {
				req := httptest.NewRequest("GET", "/", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, "Lapline Checkpoint")
			})

			Convey("And it should serve index.html directly", func() {
				req := httptest.NewRequest("GET", "/index.html", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				// FileServer redirects /index.html to /
				So(w.Code, ShouldBeIn, []int{http.StatusOK, http.StatusMovedPermanently})
			})

			Convey("And it should 404 on unknown assets", func() {
				req := httptest.NewRequest("GET", "/missing.css", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When registering with a nil mux", func() {
			Convey("Then it should panic", func() {
				So(func() { Register(ctx, nil) }, ShouldPanic)
			})
		})
	})
}
