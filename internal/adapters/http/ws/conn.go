package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn adapts a websocket to registry.Conn. gorilla allows one concurrent
// writer, so every write goes through mu.
type conn struct {
	ws           *websocket.Conn
	id           string
	remote       string
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *conn {
	return &conn{ws: ws, id: uuid.NewString(), remote: ws.RemoteAddr().String(), writeTimeout: writeTimeout}
}

// Send writes one text frame.
func (c *conn) Send(ctx context.Context, payload []byte) error {
	return c.write(ctx, websocket.TextMessage, payload)
}

// RemoteAddr returns the peer address.
func (c *conn) RemoteAddr() string { return c.remote }

func (c *conn) ping() error {
	return c.write(context.Background(), websocket.PingMessage, nil)
}

func (c *conn) write(ctx context.Context, kind int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(kind, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// close sends a close frame, best effort, and releases the socket.
func (c *conn) close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
	c.mu.Unlock()
	_ = c.ws.Close()
}
