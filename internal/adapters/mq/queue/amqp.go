package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// AMQPQueue publishes jobs to a durable work queue on the default exchange.
// Deliveries are acknowledged through Delivery.Done, which makes the
// transport at-least-once.
type AMQPQueue struct {
	conn  *amqp.Connection
	name  string
	opts  remoteOptions
	mu    sync.Mutex // guards pubCh; amqp channels are not safe for concurrent publish
	pubCh *amqp.Channel
}

// NewAMQPQueue dials the broker and declares the queue.
func NewAMQPQueue(_ context.Context, url, name string, opts ...RemoteOption) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declare(ch, name); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, name: name, opts: newRemoteOptions(opts), pubCh: ch}, nil
}

func declare(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare amqp queue %s: %w", name, err)
	}
	return nil
}

// Publish sends the job as a persistent message.
func (q *AMQPQueue) Publish(ctx context.Context, job model.Job) error {
	if q == nil || q.conn == nil || q.conn.IsClosed() {
		return ErrNotConnected
	}
	data, err := job.Encode()
	if err != nil {
		return err
	}

	q.mu.Lock()
	err = q.pubCh.PublishWithContext(ctx,
		"",     // default exchange
		q.name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    job.ID,
			DeliveryMode: amqp.Persistent,
			Body:         data,
		})
	q.mu.Unlock()

	if err != nil {
		metrics.RecordQueueEnqueueError()
		return fmt.Errorf("amqp publish: %w", err)
	}
	metrics.RecordQueueEnqueue()
	return nil
}

// Consume opens a dedicated channel with QoS and streams deliveries.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	if q == nil || q.conn == nil || q.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declare(ch, q.name); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(q.opts.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	out := make(chan Delivery, q.opts.buffer)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				d, ok := q.decode(ctx, msg)
				if !ok {
					continue
				}
				select {
				case out <- d:
					metrics.RecordQueueDequeue()
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// acknowledger is the part of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (q *AMQPQueue) decode(ctx context.Context, msg amqp.Delivery) (Delivery, bool) {
	d, ok := decodeAMQP(ctx, q.opts.logger, msg.Body, &msg)
	if ok {
		d.Job.ID = msg.MessageId
	}
	return d, ok
}

func decodeAMQP(ctx context.Context, log logger.Logger, body []byte, ack acknowledger) (Delivery, bool) {
	job, err := model.DecodeJob(body)
	if err != nil {
		log.Warn(ctx, "dropping malformed job", logger.Error(err))
		metrics.RecordErrorByComponent("queue", "malformed_job")
		_ = ack.Nack(false, false)
		return Delivery{}, false
	}
	return Delivery{
		Job: job,
		done: func(ok bool) error {
			if ok {
				return ack.Ack(false)
			}
			return ack.Nack(false, false)
		},
	}, true
}

// Close closes the publish channel and the connection.
func (q *AMQPQueue) Close() error {
	if q == nil || q.conn == nil {
		return nil
	}
	q.mu.Lock()
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	q.mu.Unlock()
	if q.conn.IsClosed() {
		return nil
	}
	return q.conn.Close()
}
