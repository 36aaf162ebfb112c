// Package simworker runs the analysis worker as a separate process: it
// consumes jobs from the shared queue, reads artifacts from the shared blob
// store, and reports back to the relay over its HTTP callback routes.
package simworker

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultWorkers = 4
	defaultTimeout = 10 * time.Second
)

// Config holds configuration for a worker process.
type Config struct {
	CallbackURL string        // Base URL of the relay API
	Workers     int           // Number of concurrent analysis workers
	Timeout     time.Duration // Callback request timeout
}

func (c *Config) normalize() error {
	c.CallbackURL = strings.TrimRight(strings.TrimSpace(c.CallbackURL), "/")
	if c.CallbackURL == "" {
		return fmt.Errorf("%w: callback url is required", ErrConfig)
	}
	if !strings.HasPrefix(c.CallbackURL, "http://") && !strings.HasPrefix(c.CallbackURL, "https://") {
		return fmt.Errorf("%w: callback url %q must be http or https", ErrConfig, c.CallbackURL)
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}
