// Package worker runs the simulated analysis side: it consumes jobs, reads
// the artifact back from blob storage, classifies it and reports progress and
// results for the job's session.
package worker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/predict"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 4
	maxArtifactBytes    = 32 << 20
	poolShutdownTimeout = 30 * time.Second
)

// Source yields job deliveries.
type Source interface {
	Consume(ctx context.Context) (<-chan queue.Delivery, error)
}

// ArtifactReader fetches stored artifacts.
type ArtifactReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, blobstore.Object, error)
}

// Reporter sends progress and result events back towards the session.
type Reporter interface {
	Report(ctx context.Context, sid model.SessionID, event model.Event) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, sid model.SessionID, event model.Event) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, sid model.SessionID, event model.Event) error {
	return f(ctx, sid, event)
}

// StartingMessage is the progress note sent before analysis begins.
func StartingMessage(key string) string {
	return "Starting analysis of image: " + key
}

// FailedMessage is sent when a job cannot be analysed.
func FailedMessage(key string) string {
	return "Analysis failed for image: " + key
}

// AnalysisWorker handles one delivery at a time.
type AnalysisWorker struct {
	store     ArtifactReader
	predictor predict.Predictor
	reporter  Reporter
	name      string
	logger    logger.Logger
}

// NewAnalysisWorker creates a worker with configuration options.
func NewAnalysisWorker(store ArtifactReader, predictor predict.Predictor, reporter Reporter, opts ...Option) *AnalysisWorker {
	w := &AnalysisWorker{
		store:     store,
		predictor: predictor,
		reporter:  reporter,
		name:      "worker",
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes deliveries until the channel closes or ctx is done.
func (w *AnalysisWorker) Run(ctx context.Context, deliveries <-chan queue.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			// In-flight jobs finish on shutdown; Pool.Shutdown bounds the wait.
			err := w.Process(context.WithoutCancel(ctx), d.Job)
			if err != nil {
				w.logger.Error(ctx, "error processing job",
					logger.String("job_id", d.Job.ID),
					logger.String("uid", d.Job.UID),
					logger.String("image_name", d.Job.ImageName),
					logger.Error(err))
			}
			if ackErr := d.Done(err == nil); ackErr != nil {
				w.logger.Warn(ctx, "failed to settle delivery", logger.Error(ackErr))
			}
		}
	}
}

// Process analyses one job and reports for its session.
func (w *AnalysisWorker) Process(ctx context.Context, job model.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	sid := job.Session()
	w.report(ctx, sid, model.NewMessageEvent(StartingMessage(job.ImageName)))

	data, err := w.fetch(ctx, job.ImageName)
	if err != nil {
		w.fail(ctx, sid, job.ImageName, "fetch_error")
		return err
	}

	p, err := w.predictor.Predict(ctx, predict.Input{ImageName: job.ImageName, Data: data})
	if err != nil {
		w.fail(ctx, sid, job.ImageName, "predict_error")
		return fmt.Errorf("predict %s: %w", job.ImageName, err)
	}

	metrics.RecordPrediction(p.Label)
	w.report(ctx, sid, model.NewResultEvent(job.ImageName, p.Label, p.Confidence).ForJob(job.ID))
	w.logger.Info(ctx, "analysis complete",
		logger.String("job_id", job.ID),
		logger.String("uid", job.UID),
		logger.String("image_name", job.ImageName),
		logger.String("prediction", p.Label))
	return nil
}

func (w *AnalysisWorker) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := w.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (w *AnalysisWorker) fail(ctx context.Context, sid model.SessionID, key, kind string) {
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", kind)
	w.report(ctx, sid, model.NewMessageEvent(FailedMessage(key)))
}

// report never fails the job; a lost notification is not retried.
func (w *AnalysisWorker) report(ctx context.Context, sid model.SessionID, event model.Event) {
	if err := w.reporter.Report(ctx, sid, event); err != nil {
		w.logger.Warn(ctx, "failed to report event",
			logger.String("uid", sid.String()),
			logger.String("topic", string(event.Topic)),
			logger.Error(err))
	}
}

// Pool runs several workers over one delivery stream.
type Pool struct {
	workers []*AnalysisWorker
	source  Source

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
}

// NewPool creates a pool of workerCount workers.
func NewPool(workerCount int, source Source, store ArtifactReader, predictor predict.Predictor, reporter Reporter) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*AnalysisWorker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewAnalysisWorker(store, predictor, reporter, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start subscribes to the source and launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	deliveries, err := p.source.Consume(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("start consuming: %w", err)
	}
	p.cancel = cancel

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *AnalysisWorker) {
			defer p.wg.Done()
			w.Run(ctx, deliveries)
		}(w)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	return nil
}

// Shutdown stops the workers and waits for in-flight jobs, bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
	}
}
