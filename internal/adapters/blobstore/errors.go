package blobstore

import "errors"

var (
	// ErrNotFound is returned when no artifact is stored under the key.
	ErrNotFound = errors.New("artifact not found")
	// ErrUnavailable is returned by a store that was not initialised.
	ErrUnavailable = errors.New("blob store unavailable")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("artifact already exists")
	// ErrInvalidKey rejects empty keys.
	ErrInvalidKey = errors.New("invalid artifact key")
)
