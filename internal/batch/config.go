package batch

import (
	"fmt"
	"time"
)

// Config holds all configuration parameters for the batch coordinator.
// Defines the queue capacity, the batch size that forces a flush, and the
// timing parameters that bound latency for sparse arrivals.
//
// The dual flush trigger (size or idle timeout) means BatchSize caps per-flush
// overhead while IdleTimeout caps how long a lone operation can sit queued.
type Config struct {
	// BatchSize is the maximum number of operations accumulated before a
	// flush is forced regardless of timing.
	BatchSize int `json:"batch_size"`

	// IdleTimeout is how long the coordinator waits for the next operation
	// before flushing whatever is pending.
	IdleTimeout time.Duration `json:"idle_timeout"`

	// QueueSize is the capacity of the submission queue between callers and
	// the coordinator loop.
	QueueSize int `json:"queue_size"`

	// StopTimeout bounds how long Stop waits for the coordinator goroutine
	// to finish its final flush and exit.
	StopTimeout time.Duration `json:"stop_timeout"`
}

// DefaultConfig returns a Config with defaults tuned for a rate-limited
// remote API: modest batches, a one-second latency bound, and queue headroom
// for bursts.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:   10,
		IdleTimeout: time.Second,
		QueueSize:   4096,
		StopTimeout: 5 * time.Second,
	}
}

// Validate checks coordinator parameters for values that would stall the loop
// or make flushing degenerate.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.BatchSize > 1000 {
		return fmt.Errorf("batch size too large (max 1000), got %d", c.BatchSize)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %v", c.IdleTimeout)
	}
	if c.IdleTimeout > time.Minute {
		return fmt.Errorf("idle timeout too large (max 1m), got %v", c.IdleTimeout)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop timeout must be positive, got %v", c.StopTimeout)
	}
	return nil
}
