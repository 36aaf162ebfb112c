package queue

import "errors"

// Sentinel kinds for publish and consume failures.
var (
	ErrQueueFull    = errors.New("queue full")
	ErrClosed       = errors.New("queue closed")
	ErrNotConnected = errors.New("queue not connected")
	ErrDrainTimeout = errors.New("drain timed out")
)
