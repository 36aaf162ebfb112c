package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

const (
	defaultFlushTimeout = 5 * time.Second
	defaultDrainTimeout = 10 * time.Second
	jobIDHeader         = "Sightline-Job-Id"
)

// NATSQueue publishes jobs on a NATS subject and consumes them through a
// queue group so each job reaches one worker. Core NATS gives at-most-once
// delivery; Done is a no-op.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
	opts    remoteOptions
	closed  chan struct{}
}

// NewNATSQueue dials NATS at url.
func NewNATSQueue(url, subject string, opts ...RemoteOption) (*NATSQueue, error) {
	o := newRemoteOptions(opts)
	log := o.logger
	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("sightline"),
		nats.DrainTimeout(defaultDrainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn(context.Background(), "disconnected from NATS", logger.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(context.Background(), "reconnected to NATS", logger.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSQueue{nc: nc, subject: subject, opts: o, closed: closed}, nil
}

// Publish sends the job and flushes so a dead connection surfaces within ctx.
func (q *NATSQueue) Publish(ctx context.Context, job model.Job) error {
	if q == nil || q.nc == nil {
		return ErrNotConnected
	}
	data, err := job.Encode()
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: q.subject, Data: data, Header: nats.Header{}}
	if job.ID != "" {
		msg.Header.Set(jobIDHeader, job.ID)
	}
	if err := q.nc.PublishMsg(msg); err != nil {
		metrics.RecordQueueEnqueueError()
		return fmt.Errorf("nats publish: %w", err)
	}
	if err := q.flush(ctx); err != nil {
		metrics.RecordQueueEnqueueError()
		return fmt.Errorf("nats flush: %w", err)
	}
	metrics.RecordQueueEnqueue()
	return nil
}

// Consume subscribes to the subject in the configured queue group.
func (q *NATSQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	if q == nil || q.nc == nil {
		return nil, ErrNotConnected
	}
	out := make(chan Delivery, q.opts.buffer)
	msgs := make(chan *nats.Msg, q.opts.buffer)
	sub, err := q.nc.ChanQueueSubscribe(q.subject, q.opts.consumerGroup, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				d, ok := q.decode(ctx, msg.Data)
				if ok && msg.Header != nil {
					d.Job.ID = msg.Header.Get(jobIDHeader)
				}
				if !ok {
					continue
				}
				select {
				case out <- d:
					metrics.RecordQueueDequeue()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// flush uses a default timeout when ctx carries no deadline; FlushWithContext requires one.
func (q *NATSQueue) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return q.nc.FlushTimeout(defaultFlushTimeout)
	}
	return q.nc.FlushWithContext(ctx)
}

func (q *NATSQueue) decode(ctx context.Context, data []byte) (Delivery, bool) {
	job, err := model.DecodeJob(data)
	if err != nil {
		q.opts.logger.Warn(ctx, "dropping malformed job", logger.Error(err))
		metrics.RecordErrorByComponent("queue", "malformed_job")
		return Delivery{}, false
	}
	return Delivery{Job: job}, true
}

// Close drains the connection: pending publishes are flushed and in-flight
// subscription messages handled before it closes.
func (q *NATSQueue) Close() error {
	if q == nil || q.nc == nil {
		return nil
	}
	return drainAndWait(q.nc, q.closed, defaultDrainTimeout+time.Second)
}

// drainer is the part of *nats.Conn used to shut down.
type drainer interface {
	Drain() error
	Close()
}

// drainAndWait starts a drain and waits for the closed handler. Drain is
// asynchronous; past wait the connection is closed outright.
func drainAndWait(nc drainer, closed <-chan struct{}, wait time.Duration) error {
	switch err := nc.Drain(); {
	case err == nil, errors.Is(err, nats.ErrConnectionDraining):
	case errors.Is(err, nats.ErrConnectionClosed):
		return nil
	default:
		nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-closed:
		return nil
	case <-timer.C:
		nc.Close()
		return fmt.Errorf("nats drain: %w", ErrDrainTimeout)
	}
}
