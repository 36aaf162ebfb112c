package api

import (
	"net/http"

	"github.com/okian/sightline/pkg/logger"
)

type serverOptions struct {
	maxFiles     int
	maxFileBytes int
}

// Option configures the Server.
type Option func(*Server, *serverOptions)

// WithUploadLimits bounds how much of a multipart upload is read.
func WithUploadLimits(maxFiles, maxFileBytes int) Option {
	return func(_ *Server, o *serverOptions) {
		if maxFiles > 0 {
			o.maxFiles = maxFiles
		}
		if maxFileBytes > 0 {
			o.maxFileBytes = maxFileBytes
		}
	}
}

// WithSessionHandler mounts the live session endpoint at /ws.
func WithSessionHandler(h http.Handler) Option {
	return func(s *Server, _ *serverOptions) {
		s.sessionHandler = h
	}
}

// WithCORSOrigins sets the allowed origins; "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server, _ *serverOptions) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server, _ *serverOptions) {
		if l != nil {
			s.logger = l
		}
	}
}
