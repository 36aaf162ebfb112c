// Package registry maps session ids to the live connection that currently
// holds them. It is the only shared mutable state on the delivery path.
package registry

import (
	"context"
	"sync"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
)

// Conn is the write side of a live session transport.
type Conn interface {
	// Send writes one text frame. Implementations serialise their own writes.
	Send(ctx context.Context, payload []byte) error
	RemoteAddr() string
}

// Registry holds at most one Conn per session id.
//
// The mutex guards map access only; Send is always called after the lock is
// released so a slow client cannot stall other sessions.
type Registry struct {
	mu    sync.RWMutex
	conns map[model.SessionID]Conn

	logger   logger.Logger
	onChange func(active int)
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{conns: make(map[model.SessionID]Conn)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("registry")
	}
	return r
}

// Register installs conn for id and returns the previous holder, if any.
// The previous holder is not closed; that is the caller's decision.
func (r *Registry) Register(id model.SessionID, conn Conn) Conn {
	r.mu.Lock()
	prev := r.conns[id]
	r.conns[id] = conn
	n := len(r.conns)
	r.mu.Unlock()

	if prev != nil && prev != conn {
		r.logger.Info(context.Background(), "session replaced",
			logger.String("uid", id.String()),
			logger.String("previous", prev.RemoteAddr()),
			logger.String("current", conn.RemoteAddr()))
	}
	r.changed(n)
	return prev
}

// Unregister removes id only if conn is still its holder. A connection that
// was replaced must not evict its successor.
func (r *Registry) Unregister(id model.SessionID, conn Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[id]
	if !ok || cur != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, id)
	n := len(r.conns)
	r.mu.Unlock()

	r.changed(n)
	return true
}

// Lookup returns the current holder for id.
func (r *Registry) Lookup(id model.SessionID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// LookupAndSend pushes event to the holder of id. It reports false when there
// is no holder, the event cannot be encoded, or the write fails.
func (r *Registry) LookupAndSend(ctx context.Context, id model.SessionID, event model.Event) bool {
	conn, ok := r.Lookup(id)
	if !ok {
		return false
	}

	payload, err := event.Encode()
	if err != nil {
		r.logger.Error(ctx, "failed to encode event", logger.String("uid", id.String()), logger.Error(err))
		return false
	}

	if err := conn.Send(ctx, payload); err != nil {
		r.logger.Warn(ctx, "failed to push event",
			logger.String("uid", id.String()),
			logger.String("topic", string(event.Topic)),
			logger.String("remote", conn.RemoteAddr()),
			logger.Error(err))
		return false
	}
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Drain removes every holder and returns them.
func (r *Registry) Drain() map[model.SessionID]Conn {
	r.mu.Lock()
	out := r.conns
	r.conns = make(map[model.SessionID]Conn)
	r.mu.Unlock()

	r.changed(0)
	return out
}

func (r *Registry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
