package simworker

import "errors"

var (
	// ErrConfig marks an unusable worker configuration.
	ErrConfig = errors.New("invalid worker config")
	// ErrCallback marks a callback the relay did not accept.
	ErrCallback = errors.New("callback rejected")
)
