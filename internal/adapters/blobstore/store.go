// Package blobstore persists uploaded artifacts under their artifact key.
// Backends: in-memory, S3 compatible object storage and Redis.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/okian/sightline/internal/config"
)

// Object describes a stored artifact.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is the narrow object storage contract used by the upload and
// retrieval paths. Put overwrites silently.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Create stores only when key is absent, atomically with respect to
	// other writers, and returns ErrExists otherwise.
	Create(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Get returns ErrNotFound when key is absent. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every stored key in lexical order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Open builds the store selected by cfg.BlobBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendS3:
		s, err := NewS3Store(ctx, S3Config{
			Bucket:          cfg.BlobBucket,
			Endpoint:        cfg.BlobEndpoint,
			Region:          cfg.BlobRegion,
			AccessKeyID:     cfg.BlobAccessKeyID,
			SecretAccessKey: cfg.BlobSecretAccessKey,
			PathStyle:       cfg.BlobPathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := NewRedisStore(ctx, cfg.BlobRedisURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
