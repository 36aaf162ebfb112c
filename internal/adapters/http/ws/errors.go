package ws

import "errors"

var (
	// ErrMissingSession is returned by the handshake when no usable uid was sent.
	ErrMissingSession = errors.New("missing session id")
	// ErrConnClosed is returned by Send after the connection closed.
	ErrConnClosed = errors.New("session connection closed")
)
