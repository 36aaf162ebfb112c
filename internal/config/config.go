// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and SIGHTLINE_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
	BackendAMQP   = "amqp"

	DuplicateOverwrite = "overwrite"
	DuplicateReject    = "reject"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr is the HTTP API listen address.
	Addr string `koanf:"addr"`
	// SessionAddr is the listen address of the dedicated session endpoint.
	SessionAddr string `koanf:"session_addr"`

	// Blob store.
	BlobBackend         string `koanf:"blob_backend"`
	BlobBucket          string `koanf:"blob_bucket"`
	BlobEndpoint        string `koanf:"blob_endpoint"`
	BlobRegion          string `koanf:"blob_region"`
	BlobAccessKeyID     string `koanf:"blob_access_key_id"`
	BlobSecretAccessKey string `koanf:"blob_secret_access_key"`
	BlobPathStyle       bool   `koanf:"blob_path_style"`
	BlobRedisURL        string `koanf:"blob_redis_url"`

	// Job queue.
	QueueBackend string `koanf:"queue_backend"`
	QueueURL     string `koanf:"queue_url"`
	QueueTopic   string `koanf:"queue_topic"`
	QueueSize    int    `koanf:"queue_size"`

	// Upload limits and policy.
	UploadMaxFiles        int      `koanf:"upload_max_files"`
	UploadMaxFileBytes    int      `koanf:"upload_max_file_bytes"`
	UploadAllowedTypes    []string `koanf:"upload_allowed_types"`
	UploadDuplicatePolicy string   `koanf:"upload_duplicate_policy"`
	StoreTimeoutMS        int      `koanf:"store_timeout_ms"`
	PublishTimeoutMS      int      `koanf:"publish_timeout_ms"`

	// Session endpoint.
	SessionWriteTimeoutMS  int  `koanf:"session_write_timeout_ms"`
	SessionPingIntervalMS  int  `koanf:"session_ping_interval_ms"`
	SessionAllowAnonymous  bool `koanf:"session_allow_anonymous"`

	// ResultDedupeSize bounds the window of delivered job ids; 0 disables it.
	ResultDedupeSize int `koanf:"result_dedupe_size"`

	// CORSAllowedOrigins lists origins allowed by the API; "*" allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Simulated analysis worker.
	EmbeddedWorker         bool   `koanf:"embedded_worker"`
	WorkerCount            int    `koanf:"worker_count"`
	PredictionLatencyMinMS int    `koanf:"prediction_latency_min_ms"`
	PredictionLatencyMaxMS int    `koanf:"prediction_latency_max_ms"`
	CallbackURL            string `koanf:"callback_url"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		SessionAddr:            ":3030",
		BlobBackend:            BackendMemory,
		BlobBucket:             "images",
		BlobRegion:             "us-east-1",
		BlobPathStyle:          true,
		BlobRedisURL:           "redis://localhost:6379/0",
		QueueBackend:           BackendMemory,
		QueueTopic:             "image-jobs",
		QueueSize:              10_000,
		UploadMaxFiles:         10,
		UploadMaxFileBytes:     2_000_000,
		UploadAllowedTypes:     []string{"image/png", "image/jpeg", "image/gif"},
		UploadDuplicatePolicy:  DuplicateOverwrite,
		StoreTimeoutMS:         10_000,
		PublishTimeoutMS:       5_000,
		SessionWriteTimeoutMS:  5_000,
		SessionPingIntervalMS:  30_000,
		ResultDedupeSize:       10_000,
		CORSAllowedOrigins:     []string{"*"},
		EmbeddedWorker:         true,
		WorkerCount:            4,
		PredictionLatencyMinMS: 200,
		PredictionLatencyMaxMS: 800,
		CallbackURL:            "http://localhost:9080",
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.UploadMaxFiles <= 0:
		return fmt.Errorf("%w: upload_max_files must be positive", ErrInvalidConfig)
	case c.UploadMaxFileBytes <= 0:
		return fmt.Errorf("%w: upload_max_file_bytes must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.QueueTopic) == "":
		return fmt.Errorf("%w: queue_topic must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.StoreTimeoutMS <= 0 || c.PublishTimeoutMS <= 0:
		return fmt.Errorf("%w: store and publish timeouts must be positive", ErrInvalidConfig)
	}

	switch c.BlobBackend {
	case BackendMemory, BackendRedis:
	case BackendS3:
		if strings.TrimSpace(c.BlobBucket) == "" {
			return fmt.Errorf("%w: blob_bucket is required for s3", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown blob_backend %q", ErrInvalidConfig, c.BlobBackend)
	}

	switch c.QueueBackend {
	case BackendMemory:
	case BackendNATS, BackendAMQP:
		if strings.TrimSpace(c.QueueURL) == "" {
			return fmt.Errorf("%w: queue_url is required for %s", ErrInvalidConfig, c.QueueBackend)
		}
	default:
		return fmt.Errorf("%w: unknown queue_backend %q", ErrInvalidConfig, c.QueueBackend)
	}

	switch c.UploadDuplicatePolicy {
	case DuplicateOverwrite, DuplicateReject:
	default:
		return fmt.Errorf("%w: upload_duplicate_policy must be overwrite or reject", ErrInvalidConfig)
	}

	if c.PredictionLatencyMinMS < 0 || c.PredictionLatencyMaxMS < c.PredictionLatencyMinMS {
		return fmt.Errorf("%w: prediction latency range is invalid", ErrInvalidConfig)
	}
	return nil
}

// StoreTimeout returns the blob store put timeout.
func (c *Config) StoreTimeout() time.Duration { return ms(c.StoreTimeoutMS) }

// PublishTimeout returns the job publish timeout.
func (c *Config) PublishTimeout() time.Duration { return ms(c.PublishTimeoutMS) }

// SessionWriteTimeout returns the per-write deadline on live sessions.
func (c *Config) SessionWriteTimeout() time.Duration { return ms(c.SessionWriteTimeoutMS) }

// SessionPingInterval returns the keepalive ping period.
func (c *Config) SessionPingInterval() time.Duration { return ms(c.SessionPingIntervalMS) }

// PredictionLatency returns the simulated worker latency range.
func (c *Config) PredictionLatency() (time.Duration, time.Duration) {
	return ms(c.PredictionLatencyMinMS), ms(c.PredictionLatencyMaxMS)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
