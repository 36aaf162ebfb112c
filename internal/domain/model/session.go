// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"unicode"
)

const maxSessionIDLen = 128

// SessionID is the opaque per-browser-session correlation key. It ties
// uploads, jobs, result reports and the live connection together.
type SessionID string

// String implements fmt.Stringer.
func (s SessionID) String() string { return string(s) }

// Validate rejects ids that are empty, oversized, or that could not be
// embedded in an artifact key addressable as a single path segment.
func (s SessionID) Validate() error {
	raw := string(s)
	if strings.TrimSpace(raw) == "" {
		return Validationf("missing session id")
	}
	if len(raw) > maxSessionIDLen {
		return Validationf("session id longer than %d bytes", maxSessionIDLen)
	}
	for _, r := range raw {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return Validationf("session id contains invalid character %q", r)
		}
	}
	return nil
}

// ArtifactKey derives the storage key for a file uploaded under a session:
// "{sid}-{name}". Directory components sent by the client are dropped so the
// key stays a single path segment.
func ArtifactKey(sid SessionID, fileName string) string {
	return string(sid) + "-" + BaseName(fileName)
}

// BaseName strips any directory components from a client-supplied file name,
// treating both '/' and '\' as separators.
func BaseName(fileName string) string {
	if i := strings.LastIndexAny(fileName, `/\`); i >= 0 {
		fileName = fileName[i+1:]
	}
	return strings.TrimSpace(fileName)
}
