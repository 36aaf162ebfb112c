package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	redisIndexKey   = "blob:index"
)

// RedisStore keeps artifact bytes in Redis strings, metadata in a hash and
// the key set in an index set so List does not need SCAN.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey(key), data, 0)
	pipe.HSet(ctx, metaKey(key), "content_type", contentType, "size", len(data))
	pipe.SAdd(ctx, redisIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Create claims the data key with SET NX; metadata and index follow only
// for the winner.
func (s *RedisStore) Create(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	ok, err := s.client.SetNX(ctx, dataKey(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrExists)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, metaKey(key), "content_type", contentType, "size", len(data))
	pipe.SAdd(ctx, redisIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis create %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	if s == nil || s.client == nil {
		return nil, Object{}, ErrUnavailable
	}
	pipe := s.client.Pipeline()
	dataCmd := pipe.Get(ctx, dataKey(key))
	metaCmd := pipe.HGetAll(ctx, metaKey(key))
	_, _ = pipe.Exec(ctx)

	data, err := dataCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	obj := Object{Key: key, Size: int64(len(data))}
	if meta, err := metaCmd.Result(); err == nil {
		obj.ContentType = meta["content_type"]
		if n, err := strconv.ParseInt(meta["size"], 10, 64); err == nil {
			obj.Size = n
		}
	}
	return io.NopCloser(bytes.NewReader(data)), obj, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, ErrUnavailable
	}
	n, err := s.client.Exists(ctx, dataKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, ErrUnavailable
	}
	keys, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func dataKey(key string) string { return "blob:data:" + key }
func metaKey(key string) string { return "blob:meta:" + key }
