// Package service composes the upload and delivery paths behind the API:
// uploads are stored then published as jobs, worker reports are pushed to
// the live session that owns them.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/adapters/mq/worker"
	"github.com/okian/sightline/internal/domain/dedupe"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/predict"
	"github.com/okian/sightline/internal/domain/types"
	"github.com/okian/sightline/internal/registry"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Service implements the API dependencies for the relay.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store    blobstore.Store
	queue    queue.Queue
	registry *registry.Registry

	uploads    *UploadCoordinator
	dispatcher *Dispatcher
	pool       *worker.Pool

	// Configuration
	limits         UploadLimits
	dedupeSize     int
	embeddedWorker bool
	workerCount    int
	predictor      predict.Predictor

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service over its collaborators.
func New(store blobstore.Store, q queue.Queue, reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		store:       store,
		queue:       q,
		registry:    reg,
		limits:      DefaultUploadLimits(),
		dedupeSize:  10_000,
		workerCount: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	var deduper dedupe.Deduper
	if s.dedupeSize > 0 {
		deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	s.uploads = NewUploadCoordinator(store, q, s.limits, s.logger.Named("upload"))
	s.dispatcher = NewDispatcher(reg, deduper, s.logger.Named("dispatch"))
	return s
}

// Start launches the embedded analysis worker when enabled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.embeddedWorker {
		p := s.predictor
		if p == nil {
			p = predict.NewSimulatedPredictor()
		}
		s.pool = worker.NewPool(s.workerCount, s.queue, s.store, p, s.dispatcher)
		if err := s.pool.Start(ctx); err != nil {
			s.pool = nil
			return err
		}
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "relay service started",
		logger.Bool("embeddedWorker", s.embeddedWorker),
		logger.Int("workers", s.workerCount),
		logger.Int("dedupeSize", s.dedupeSize))
	return nil
}

// Stop shuts the worker pool down and closes the queue and store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping relay service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
		s.pool = nil
	}
	if err := s.queue.Close(); err != nil {
		s.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing blob store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "relay service stopped")
}

// HandleUpload stores and publishes an upload for sid.
func (s *Service) HandleUpload(ctx context.Context, sid model.SessionID, files []model.File) (types.UploadReport, error) {
	return s.uploads.HandleUpload(ctx, sid, files)
}

// Deliver pushes an event to sid's live connection.
func (s *Service) Deliver(ctx context.Context, sid model.SessionID, event model.Event) bool {
	return s.dispatcher.Deliver(ctx, sid, event)
}

// ListArtifacts returns every stored artifact key.
func (s *Service) ListArtifacts(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// OpenArtifact streams one artifact; the caller closes the reader.
func (s *Service) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, blobstore.Object, error) {
	return s.store.Get(ctx, key)
}

// Sessions returns the number of live sessions.
func (s *Service) Sessions() int {
	return s.registry.Len()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.registry.Len()
	stats := map[string]interface{}{
		"started":        s.started,
		"sessions":       sessions,
		"embeddedWorker": s.embeddedWorker,
		"workerCount":    s.workerCount,
		"maxFiles":       s.limits.MaxFiles,
		"maxFileBytes":   s.limits.MaxFileBytes,
		"dedupeSize":     s.dedupeSize,
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	}
	if q, ok := s.queue.(*queue.InMemoryQueue); ok {
		stats["queueLength"] = q.Len()
	}
	if s.dispatcher.deduper != nil {
		stats["dedupeEntries"] = s.dispatcher.deduper.Size()
	}

	metrics.UpdateSessionsActive(sessions)
	return stats
}
