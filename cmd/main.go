package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/http/api"
	"github.com/okian/sightline/internal/adapters/http/site"
	"github.com/okian/sightline/internal/adapters/http/swagger"
	"github.com/okian/sightline/internal/adapters/http/ws"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	service "github.com/okian/sightline/internal/app"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/registry"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 60 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Our own system metrics replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(ctx, cfg); err != nil {
		os.Stderr.WriteString("relay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := blobstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	q, err := queue.Open(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	reg := registry.New(registry.WithOnChange(metrics.UpdateSessionsActive))
	svc := service.New(store, q, reg,
		service.WithConfig(cfg),
		service.WithLogger(log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		_ = q.Close()
		_ = store.Close()
		return err
	}
	defer svc.Stop(context.Background())

	gateway := ws.New(reg,
		ws.WithWriteTimeout(cfg.SessionWriteTimeout()),
		ws.WithPingInterval(cfg.SessionPingInterval()),
		ws.WithAllowAnonymous(cfg.SessionAllowAnonymous),
		ws.WithCheckOrigin(originChecker(cfg.CORSAllowedOrigins)),
	)

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	apiSrv := newHTTPServer(cfg.Addr, buildRouter(ctx, cfg, svc, gateway))
	sessionSrv := newHTTPServer(cfg.SessionAddr, gateway)

	errc := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		log.Info(ctx, "starting HTTP server", logger.String("server", name), logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}
	go serve("api", apiSrv)
	if cfg.SessionAddr != "" && cfg.SessionAddr != cfg.Addr {
		go serve("session", sessionSrv)
	}

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-errc:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "session gateway shutdown incomplete", logger.Error(err))
	}
	for _, srv := range []*http.Server{apiSrv, sessionSrv} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.String("addr", srv.Addr), logger.Error(err))
		}
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// buildRouter registers API, docs and the static client, in that order, since
// the client is a catch-all.
func buildRouter(ctx context.Context, cfg *config.Config, svc *service.Service, gateway http.Handler) *mux.Router {
	router := mux.NewRouter()

	apiServer := api.NewServer(svc, svc,
		api.WithUploadLimits(cfg.UploadMaxFiles, cfg.UploadMaxFileBytes),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithSessionHandler(gateway),
	)
	apiServer.Register(ctx, router)
	swagger.Register(ctx, router)
	site.Register(ctx, router)
	return router
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// originChecker applies the CORS allow-list to websocket handshakes.
// Requests without an Origin header are not from browsers and pass.
func originChecker(origins []string) func(string) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(string) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(origin string) bool {
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics pushes gauges that are cheaper to poll than to track.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok && stats["embeddedWorker"] == true {
		metrics.UpdateWorkerCount(workerCount)
	}
}
