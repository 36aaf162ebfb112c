// Package queue carries analysis jobs from the upload path to workers.
//
// Delivery is at-least-once on the broker backends; consumers acknowledge
// each Delivery once the job has been handled.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultConsumerGroup = "sightline-workers"
)

// Publisher hands a job to the analysis side.
type Publisher interface {
	Publish(ctx context.Context, job model.Job) error
}

// Delivery is one job handed to a consumer.
type Delivery struct {
	Job  model.Job
	done func(ok bool) error
}

// Done acknowledges the delivery. ok=false tells the broker the job failed;
// it is not redelivered.
func (d Delivery) Done(ok bool) error {
	if d.done == nil {
		return nil
	}
	return d.done(ok)
}

// Queue is a job transport with both ends.
type Queue interface {
	Publisher
	// Consume streams deliveries until ctx is cancelled or the queue closes.
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// Open builds the queue selected by cfg.QueueBackend.
func Open(ctx context.Context, cfg *config.Config, opts ...RemoteOption) (Queue, error) {
	switch cfg.QueueBackend {
	case config.BackendMemory:
		return NewInMemoryQueue(WithCapacity(cfg.QueueSize)), nil
	case config.BackendNATS:
		q, err := NewNATSQueue(cfg.QueueURL, cfg.QueueTopic, opts...)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.BackendAMQP:
		q, err := NewAMQPQueue(ctx, cfg.QueueURL, cfg.QueueTopic, opts...)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan model.Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan model.Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Publish enqueues job without blocking. It fails with ErrQueueFull when the
// buffer is at capacity.
func (q *InMemoryQueue) Publish(ctx context.Context, job model.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}
}

// Consume returns a channel that receives jobs as they become available.
// The channel is closed when the queue is closed or ctx is done.
func (q *InMemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				metrics.RecordQueueDequeue()
				q.observe()
				select {
				case out <- Delivery{Job: job}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs; consumers drain what is buffered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
