// Package ws serves live browser sessions over websockets. Each connection
// carries a session id in its uid query parameter and is registered so that
// worker reports can be pushed to it.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/registry"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	maxMessageBytes     = 4 << 10
)

// Gateway upgrades HTTP requests into registered session connections.
type Gateway struct {
	registry *registry.Registry
	upgrader websocket.Upgrader

	writeTimeout   time.Duration
	pingInterval   time.Duration
	allowAnonymous bool
	checkOrigin    func(origin string) bool

	mu       sync.Mutex
	live     map[*conn]struct{}
	closing  bool
	handlers sync.WaitGroup

	logger logger.Logger
}

// New creates a Gateway that registers sessions in reg.
func New(reg *registry.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry:     reg,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		checkOrigin:  func(string) bool { return true },
		live:         make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("ws")
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return g.checkOrigin(r.Header.Get("Origin")) },
	}
	return g
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, err := g.sessionID(r)
	if err != nil {
		metrics.RecordHandshakeRejected("missing_uid")
		g.logger.Debug(ctx, "handshake rejected", logger.String("remote", r.RemoteAddr), logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		metrics.RecordHandshakeRejected("shutting_down")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	g.handlers.Add(1)
	g.mu.Unlock()
	defer g.handlers.Done()

	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		metrics.RecordHandshakeRejected("upgrade")
		g.logger.Warn(ctx, "websocket upgrade failed", logger.String("remote", r.RemoteAddr), logger.Error(err))
		return
	}

	c := newConn(socket, g.writeTimeout)
	g.track(c)
	defer g.untrack(c)
	metrics.RecordSessionOpened()

	log := g.logger.With(logger.String("uid", sid.String()), logger.String("remote", c.RemoteAddr()), logger.String("conn_id", c.id))
	if sid != "" {
		if prev := g.registry.Register(sid, c); prev != nil && prev != registry.Conn(c) {
			metrics.RecordSessionReplaced()
		}
		defer g.registry.Unregister(sid, c)
	}
	log.Info(ctx, "session opened")

	g.serve(ctx, c, log)
	log.Info(ctx, "session closed")
}

// sessionID reads the uid query parameter. An absent uid is only allowed in
// anonymous mode, where it yields the empty id.
func (g *Gateway) sessionID(r *http.Request) (model.SessionID, error) {
	raw := r.URL.Query().Get("uid")
	if raw == "" && g.allowAnonymous {
		return "", nil
	}
	sid := model.SessionID(raw)
	if err := sid.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMissingSession, err)
	}
	return sid, nil
}

// serve runs the read loop until the peer goes away. Text frames are echoed
// back so clients can check liveness.
func (g *Gateway) serve(ctx context.Context, c *conn, log logger.Logger) {
	defer c.close(websocket.CloseNormalClosure, "")

	socket := c.ws
	socket.SetReadLimit(maxMessageBytes)
	pongWait := 2 * g.pingInterval
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go g.keepalive(c, done, log)

	for {
		kind, payload, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug(ctx, "session read ended", logger.Error(err))
			}
			return
		}
		_ = socket.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if err := c.Send(ctx, payload); err != nil {
			metrics.RecordSessionWriteFailure()
			log.Debug(ctx, "echo failed", logger.Error(err))
			return
		}
	}
}

func (g *Gateway) keepalive(c *conn, done <-chan struct{}, log logger.Logger) {
	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Debug(context.Background(), "ping failed", logger.Error(err))
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (g *Gateway) track(c *conn) {
	g.mu.Lock()
	g.live[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.live, c)
	g.mu.Unlock()
}

// Shutdown stops accepting sessions, drains the registry and closes every
// open connection, then waits for their handlers or ctx.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	conns := make([]*conn, 0, len(g.live))
	for c := range g.live {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	drained := g.registry.Drain()
	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	g.logger.Info(ctx, "session gateway shutting down",
		logger.Int("registered", len(drained)), logger.Int("connections", len(conns)))

	finished := make(chan struct{})
	go func() {
		g.handlers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connections returns the number of open websocket connections, registered or not.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}
