package registry

import "github.com/okian/sightline/pkg/logger"

// Option configures a Registry.
type Option func(*Registry)

// WithLogger overrides the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnChange registers a callback invoked with the number of live sessions
// after every change. It runs outside the registry lock.
func WithOnChange(fn func(active int)) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}
