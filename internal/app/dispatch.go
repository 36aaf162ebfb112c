package service

import (
	"context"

	"github.com/okian/sightline/internal/domain/dedupe"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Sender pushes an event to the live connection of a session.
type Sender interface {
	LookupAndSend(ctx context.Context, id model.SessionID, event model.Event) bool
}

// Dispatcher routes worker reports to live sessions. Delivery is best
// effort: no retry, no buffering for absent sessions.
type Dispatcher struct {
	sender  Sender
	deduper dedupe.Deduper // nil disables duplicate suppression
	logger  logger.Logger
}

// NewDispatcher creates a dispatcher. deduper may be nil.
func NewDispatcher(sender Sender, deduper dedupe.Deduper, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Get().Named("dispatch")
	}
	return &Dispatcher{sender: sender, deduper: deduper, logger: log}
}

// Deliver pushes event to sid and reports whether it was written. A Result
// whose job was already delivered is dropped. Misses and duplicates are
// counted and logged, never returned as errors.
func (d *Dispatcher) Deliver(ctx context.Context, sid model.SessionID, event model.Event) bool {
	topic := string(event.Topic)
	metrics.RecordEventReceived(topic)

	if err := sid.Validate(); err != nil {
		d.miss(ctx, sid, topic, "invalid session id")
		return false
	}

	key, check := d.dedupeKey(sid, event)
	if check && d.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordEventDuplicate()
		d.logger.Debug(ctx, "duplicate result dropped",
			logger.String("uid", sid.String()),
			logger.String("job_id", event.JobID),
			logger.String("image_name", event.Result.ImageName))
		return false
	}

	if !d.sender.LookupAndSend(ctx, sid, event) {
		if check {
			// A redelivery after the client reconnects should still go out.
			d.deduper.Unrecord(ctx, key)
		}
		d.miss(ctx, sid, topic, "no live session")
		return false
	}

	metrics.RecordEventDelivered(topic)
	return true
}

// Report adapts Deliver to the worker reporter contract.
func (d *Dispatcher) Report(ctx context.Context, sid model.SessionID, event model.Event) error {
	d.Deliver(ctx, sid, event)
	return nil
}

// dedupeKey keys results on the job they answer. Re-uploading the same bytes
// yields a new job and so a new key; results without a job id always pass.
func (d *Dispatcher) dedupeKey(sid model.SessionID, event model.Event) (string, bool) {
	if d.deduper == nil || event.Topic != model.TopicResult || event.Result == nil || event.JobID == "" {
		return "", false
	}
	return sid.String() + "\x00" + event.JobID, true
}

func (d *Dispatcher) miss(ctx context.Context, sid model.SessionID, topic, reason string) {
	metrics.RecordEventMissed(topic)
	d.logger.Debug(ctx, "event not delivered",
		logger.String("uid", sid.String()),
		logger.String("topic", topic),
		logger.String("reason", reason))
}
