package ws

import (
	"time"

	"github.com/okian/sightline/pkg/logger"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithWriteTimeout bounds every frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.writeTimeout = d
		}
	}
}

// WithPingInterval sets the keepalive ping period. Peers that miss two
// pings in a row are dropped.
func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// WithAllowAnonymous accepts connections without a uid. They get echo
// but are never registered, so no event can reach them.
func WithAllowAnonymous(allow bool) Option {
	return func(g *Gateway) {
		g.allowAnonymous = allow
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(origin string) bool) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.checkOrigin = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}
