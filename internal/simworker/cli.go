package simworker

import "os"

// ShowHelp prints usage information for the worker process.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Sightline Simulated Worker
==========================

Consumes image analysis jobs from the shared queue, runs the simulated
classifier on each stored image and reports progress and results back to
the relay's /message and /result callbacks.

Usage:
  go run ./cmd/simworker [options]

Options:
  -config string
        Path to a YAML config file (same keys as the relay; SIGHTLINE_* env overrides)
  -workers int
        Number of concurrent workers (default: worker_count from config)
  -callback string
        Base URL of the relay API (default: callback_url from config)
  -help
        Show this help message

The queue and blob store must be shared with the relay, so queue_backend
must be nats or amqp and blob_backend must be s3 or redis.

Examples:
  SIGHTLINE_QUEUE_BACKEND=nats SIGHTLINE_QUEUE_URL=nats://localhost:4222 \
  SIGHTLINE_BLOB_BACKEND=redis go run ./cmd/simworker -workers 8
`)
}
