package service

import (
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/predict"
	"github.com/okian/sightline/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies upload limits, de-duplication and worker settings from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.limits = LimitsFromConfig(cfg)
		s.dedupeSize = cfg.ResultDedupeSize
		s.embeddedWorker = cfg.EmbeddedWorker
		if cfg.WorkerCount > 0 {
			s.workerCount = cfg.WorkerCount
		}
		lo, hi := cfg.PredictionLatency()
		s.predictor = predict.NewSimulatedPredictor(predict.WithLatencyRange(lo, hi))
	}
}

// WithUploadLimits overrides the upload limits.
func WithUploadLimits(limits UploadLimits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

// WithDedupeSize sets the result de-duplication window; 0 disables it.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithEmbeddedWorker runs count analysis workers in process using predictor.
// A nil predictor selects the simulated one.
func WithEmbeddedWorker(count int, predictor predict.Predictor) Option {
	return func(s *Service) {
		s.embeddedWorker = true
		if count > 0 {
			s.workerCount = count
		}
		if predictor != nil {
			s.predictor = predictor
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
