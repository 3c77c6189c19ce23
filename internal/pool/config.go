// Package pool provides a bounded worker pool for executing remote-call tasks
// against the workspace API with controlled parallelism.
package pool

import (
	"fmt"
)

// Config holds all configuration parameters for the connection pool. Defines
// worker parallelism and the task queue capacity that bounds how many accepted
// submissions may wait for a free worker.
//
// Proper sizing matters because the upstream workspace API is rate limited:
// more workers raise throughput but also the chance of tripping the remote
// rate limiter, which surfaces as per-task errors.
type Config struct {
	// MaxConnections is the number of worker goroutines executing tasks in
	// parallel. Matches the remote API's tolerated concurrency.
	MaxConnections int `json:"max_connections"`

	// QueueSize is the capacity of the pending-task queue. Submissions beyond
	// this are rejected rather than blocking the submitter.
	QueueSize int `json:"queue_size"`
}

// DefaultConfig returns a Config with conservative defaults suitable for
// rate-limited remote APIs: a small number of parallel connections and enough
// queue headroom for bursty batch flushes.
func DefaultConfig() *Config {
	return &Config{
		MaxConnections: 4,
		QueueSize:      256,
	}
}

// Validate checks that pool parameters are within operable bounds to prevent
// a pool that can never run tasks or one that hoards unbounded memory.
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxConnections > 64 {
		return fmt.Errorf("max connections too large (max 64), got %d", c.MaxConnections)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.QueueSize > 100000 {
		return fmt.Errorf("queue size too large (max 100000), got %d", c.QueueSize)
	}
	return nil
}
