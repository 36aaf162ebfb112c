package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a router with an API route and the site", t, func() {
		router := mux.NewRouter()
		router.HandleFunc("/hello", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("Hello Server"))
		})
		Register(context.Background(), router)

		Convey("When requesting /", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Convey("Then the client page is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, "/upload/")
				So(w.Body.String(), ShouldContainSubstring, "data.message")
			})
		})

		Convey("When requesting an API route registered before the site", func() {
			req := httptest.NewRequest(http.MethodGet, "/hello", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Convey("Then the API route wins", func() {
				So(w.Body.String(), ShouldEqual, "Hello Server")
			})
		})

		Convey("When requesting an unknown asset", func() {
			req := httptest.NewRequest(http.MethodGet, "/missing.js", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Convey("Then it is a 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSiteHandlerWithNilRouter(t *testing.T) {
	Convey("Given a nil router", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
