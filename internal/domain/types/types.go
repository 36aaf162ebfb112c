// Package types contains common types used across the application
package types

import "github.com/okian/sightline/internal/domain/model"

// StoredFile describes a file that reached the blob store.
type StoredFile struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
	Published   bool   `json:"published"`
}

// FileFailure describes a file that failed validation, storage or publish.
// Key is set when the failure happened after the key was derived.
type FileFailure struct {
	Index  int               `json:"index"`
	Name   string            `json:"name"`
	Key    string            `json:"key,omitempty"`
	Kind   model.FailureKind `json:"kind"`
	Reason string            `json:"reason"`
}

// UploadReport is the per-file outcome of one upload call.
type UploadReport struct {
	SessionID string        `json:"session_id"`
	Stored    []StoredFile  `json:"stored"`
	Failed    []FileFailure `json:"failed"`

	// Truncated is set when the request body hit its cap and later parts
	// were never read.
	Truncated bool `json:"truncated,omitempty"`
}

// Keys returns the keys of all stored files in upload order.
func (r UploadReport) Keys() []string {
	keys := make([]string, 0, len(r.Stored))
	for _, s := range r.Stored {
		keys = append(keys, s.Key)
	}
	return keys
}

// Published counts stored files whose job was published.
func (r UploadReport) Published() int {
	n := 0
	for _, s := range r.Stored {
		if s.Published {
			n++
		}
	}
	return n
}

// TotalFailure reports whether no file at all reached the blob store.
func (r UploadReport) TotalFailure() bool {
	return len(r.Stored) == 0
}

// Outcome summarises the report as ok, partial or failed.
func (r UploadReport) Outcome() string {
	switch {
	case r.TotalFailure():
		return "failed"
	case len(r.Failed) > 0:
		return "partial"
	default:
		return "ok"
	}
}
