package simworker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/predict"
	"github.com/okian/sightline/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// callbackRecorder stands in for the relay's callback routes.
type callbackRecorder struct {
	mu     sync.Mutex
	calls  []*url.URL
	status int
}

func (c *callbackRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.calls = append(c.calls, r.URL)
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

func (c *callbackRecorder) snapshot() []*url.URL {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*url.URL(nil), c.calls...)
}

func TestHTTPReporter(t *testing.T) {
	Convey("Given a reporter pointed at a callback server", t, func() {
		rec := &callbackRecorder{}
		srv := httptest.NewServer(rec)
		defer srv.Close()
		reporter := NewHTTPReporter(srv.URL, nil)
		ctx := context.Background()

		Convey("When reporting a message", func() {
			err := reporter.Report(ctx, "abc123", model.NewMessageEvent("Starting analysis of image: abc123-photo.png"))

			Convey("Then it hits /message with uid and message", func() {
				So(err, ShouldBeNil)
				calls := rec.snapshot()
				So(len(calls), ShouldEqual, 1)
				So(calls[0].Path, ShouldEqual, "/message")
				So(calls[0].Query().Get("uid"), ShouldEqual, "abc123")
				So(calls[0].Query().Get("message"), ShouldEqual, "Starting analysis of image: abc123-photo.png")
			})
		})

		Convey("When reporting a result with characters that need escaping", func() {
			conf := "Normal: 0.900, Pneumonia: 0.050, COVID-19: 0.050"
			err := reporter.Report(ctx, "abc123", model.NewResultEvent("abc123-a&b.png", "normal", conf))

			Convey("Then every field arrives intact on /result", func() {
				So(err, ShouldBeNil)
				q := rec.snapshot()[0].Query()
				So(rec.snapshot()[0].Path, ShouldEqual, "/result")
				So(q.Get("image_name"), ShouldEqual, "abc123-a&b.png")
				So(q.Get("prediction"), ShouldEqual, "normal")
				So(q.Get("confidence"), ShouldEqual, conf)
				So(q.Has("job_id"), ShouldBeFalse)
			})
		})

		Convey("When reporting a result tagged with its job", func() {
			err := reporter.Report(ctx, "abc123", model.NewResultEvent("abc123-photo.png", "normal", "0.9").ForJob("job-7"))

			Convey("Then the job id travels with the callback", func() {
				So(err, ShouldBeNil)
				So(rec.snapshot()[0].Query().Get("job_id"), ShouldEqual, "job-7")
			})
		})

		Convey("When the relay answers with an error status", func() {
			rec.status = http.StatusBadGateway
			err := reporter.Report(ctx, "abc123", model.NewMessageEvent("hi"))

			Convey("Then the report fails with ErrCallback", func() {
				So(err, ShouldWrap, ErrCallback)
			})
		})

		Convey("When the event has no payload", func() {
			err := reporter.Report(ctx, "abc123", model.Event{Topic: model.TopicResult})

			Convey("Then nothing is sent", func() {
				So(err, ShouldNotBeNil)
				So(rec.snapshot(), ShouldBeEmpty)
			})
		})
	})
}

func TestConfigNormalize(t *testing.T) {
	Convey("Given worker configs", t, func() {
		Convey("A trailing slash is trimmed and defaults filled", func() {
			cfg := Config{CallbackURL: "http://localhost:9080/"}
			So(cfg.normalize(), ShouldBeNil)
			So(cfg.CallbackURL, ShouldEqual, "http://localhost:9080")
			So(cfg.Workers, ShouldEqual, defaultWorkers)
			So(cfg.Timeout, ShouldEqual, defaultTimeout)
		})

		Convey("An empty or non-http callback is rejected", func() {
			So((&Config{}).normalize(), ShouldWrap, ErrConfig)
			So((&Config{CallbackURL: "ftp://x"}).normalize(), ShouldWrap, ErrConfig)
		})
	})
}

func TestRunner(t *testing.T) {
	Convey("Given a runner over an in-memory queue and store", t, func() {
		rec := &callbackRecorder{}
		srv := httptest.NewServer(rec)
		defer srv.Close()

		store := blobstore.NewMemoryStore()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		predictor := predict.NewSimulatedPredictor(predict.WithLatencyRange(0, 0))

		runner, err := NewRunner(Config{CallbackURL: srv.URL, Workers: 2}, q, store, predictor)
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx) }()

		Convey("When a job for a stored image is published", func() {
			data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{7}, 256)...)
			So(store.Put(context.Background(), "abc123-photo.png", bytes.NewReader(data), int64(len(data)), "image/png"), ShouldBeNil)
			job := model.NewJob("abc123", "abc123-photo.png")
			So(q.Publish(context.Background(), job), ShouldBeNil)

			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) && len(rec.snapshot()) < 2 {
				time.Sleep(10 * time.Millisecond)
			}
			cancel()
			So(<-done, ShouldBeNil)

			Convey("Then the relay gets the progress message and the result", func() {
				calls := rec.snapshot()
				So(len(calls), ShouldEqual, 2)
				So(calls[0].Path, ShouldEqual, "/message")
				So(calls[0].Query().Get("message"), ShouldEqual, "Starting analysis of image: abc123-photo.png")
				So(calls[1].Path, ShouldEqual, "/result")
				So(calls[1].Query().Get("uid"), ShouldEqual, "abc123")
				So(calls[1].Query().Get("image_name"), ShouldEqual, "abc123-photo.png")
				So(predict.Labels, ShouldContain, calls[1].Query().Get("prediction"))
				So(strings.HasPrefix(calls[1].Query().Get("confidence"), "Normal: "), ShouldBeTrue)
				So(calls[1].Query().Get("job_id"), ShouldEqual, job.ID)
			})
		})

		Reset(func() {
			cancel()
		})
	})
}

func TestRunRejectsProcessLocalBackends(t *testing.T) {
	Convey("Given the default config with in-memory backends", t, func() {
		err := Run(context.Background(), config.New(), Config{CallbackURL: "http://localhost:9080"})

		Convey("Then the worker refuses to start", func() {
			So(err, ShouldWrap, ErrConfig)
		})
	})
}
