package queue

import "github.com/okian/sightline/pkg/logger"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of buffered jobs.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// RemoteOption configures the broker backed queues.
type RemoteOption func(*remoteOptions)

type remoteOptions struct {
	logger        logger.Logger
	consumerGroup string
	prefetch      int
	buffer        int
}

func newRemoteOptions(opts []RemoteOption) remoteOptions {
	o := remoteOptions{consumerGroup: defaultConsumerGroup, prefetch: 16, buffer: 64}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("queue")
	}
	return o
}

// WithLogger overrides the queue logger.
func WithLogger(l logger.Logger) RemoteOption {
	return func(o *remoteOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConsumerGroup names the competing-consumer group (NATS queue group).
func WithConsumerGroup(name string) RemoteOption {
	return func(o *remoteOptions) {
		if name != "" {
			o.consumerGroup = name
		}
	}
}

// WithPrefetch bounds unacknowledged deliveries per consumer (AMQP QoS).
func WithPrefetch(n int) RemoteOption {
	return func(o *remoteOptions) {
		if n > 0 {
			o.prefetch = n
		}
	}
}
