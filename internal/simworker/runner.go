package simworker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/adapters/mq/worker"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/predict"
	"github.com/okian/sightline/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Runner drives a worker pool until its context ends.
type Runner struct {
	cfg       Config
	source    worker.Source
	store     worker.ArtifactReader
	predictor predict.Predictor
	reporter  worker.Reporter
	logger    logger.Logger
}

// NewRunner wires a runner over already opened collaborators.
func NewRunner(cfg Config, source worker.Source, store worker.ArtifactReader, predictor predict.Predictor) (*Runner, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Runner{
		cfg:       cfg,
		source:    source,
		store:     store,
		predictor: predictor,
		reporter:  NewHTTPReporter(cfg.CallbackURL, &http.Client{Timeout: cfg.Timeout}),
		logger:    logger.Get().Named("simworker"),
	}, nil
}

// Run starts the pool and blocks until ctx is cancelled, then drains it.
func (r *Runner) Run(ctx context.Context) error {
	pool := worker.NewPool(r.cfg.Workers, r.source, r.store, r.predictor, r.reporter)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	r.logger.Info(ctx, "worker running",
		logger.Int("workers", r.cfg.Workers),
		logger.String("callback", r.cfg.CallbackURL))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn(shutdownCtx, "worker pool shutdown incomplete", logger.Error(err))
	}
	r.logger.Info(shutdownCtx, "worker stopped")
	return nil
}

// Run opens the blob store and queue named by appCfg and runs a worker
// process until ctx is cancelled.
func Run(ctx context.Context, appCfg *config.Config, cfg Config) error {
	if appCfg.QueueBackend == config.BackendMemory {
		return fmt.Errorf("%w: queue_backend memory is process local; use nats or amqp", ErrConfig)
	}
	if appCfg.BlobBackend == config.BackendMemory {
		return fmt.Errorf("%w: blob_backend memory is process local; use s3 or redis", ErrConfig)
	}

	store, err := blobstore.Open(ctx, appCfg)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer store.Close()

	q, err := queue.Open(ctx, appCfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	lo, hi := appCfg.PredictionLatency()
	runner, err := NewRunner(cfg, q, store, predict.NewSimulatedPredictor(predict.WithLatencyRange(lo, hi)))
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
