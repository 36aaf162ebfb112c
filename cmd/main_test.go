package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/http/ws"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	service "github.com/okian/sightline/internal/app"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/registry"
	"github.com/okian/sightline/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestService() (*service.Service, *registry.Registry) {
	reg := registry.New()
	return service.New(blobstore.NewMemoryStore(), queue.NewInMemoryQueue(), reg), reg
}

func TestBuildRouter(t *testing.T) {
	convey.Convey("Given the assembled router", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc, reg := newTestService()
		router := buildRouter(ctx, cfg, svc, ws.New(reg))

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			return w
		}

		convey.Convey("Then API routes are reachable", func() {
			w := get("/hello")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldEqual, "Hello Server")
			convey.So(get("/healthz").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/listimages").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And the docs routes are reachable", func() {
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And / serves the client page", func() {
			w := get("/")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldContainSubstring, "text/html")
		})

		convey.Convey("And /ws without a uid is refused before upgrade", func() {
			convey.So(get("/ws").Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestOriginChecker(t *testing.T) {
	convey.Convey("Given origin allow-lists", t, func() {
		convey.Convey("A wildcard allows everything", func() {
			check := originChecker([]string{"*"})
			convey.So(check("http://evil.example"), convey.ShouldBeTrue)
		})

		convey.Convey("An explicit list allows members and non-browser clients", func() {
			check := originChecker([]string{"http://localhost:3000"})
			convey.So(check("http://localhost:3000"), convey.ShouldBeTrue)
			convey.So(check(""), convey.ShouldBeTrue)
			convey.So(check("http://evil.example"), convey.ShouldBeFalse)
		})
	})
}

func TestNewHTTPServer(t *testing.T) {
	convey.Convey("Given a server built for the API", t, func() {
		srv := newHTTPServer(":0", http.NotFoundHandler())

		convey.Convey("Then its timeouts are set", func() {
			convey.So(srv.Addr, convey.ShouldEqual, ":0")
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
			convey.So(srv.IdleTimeout, convey.ShouldEqual, idleTimeout)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		svc, _ := newTestService()

		convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)

		convey.Convey("They return once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc)
				close(done)
			}()
			<-done
		})
	})
}

func TestRunRejectsBadBackends(t *testing.T) {
	convey.Convey("Given a config pointing at an unreachable redis", t, func() {
		cfg := config.New()
		cfg.BlobBackend = config.BackendRedis
		cfg.BlobRedisURL = "redis://127.0.0.1:1/0"

		convey.Convey("Then run fails before serving", func() {
			err := run(context.Background(), cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
