// Package workrelay provides a batching relay layer in front of a paginated,
// rate-limited workspace-database HTTP API. It composes a bounded connection
// pool, a batch coordinator with a dual flush trigger, a TTL cache with
// write-invalidation, and a thread-safe performance monitor behind a single
// Layer facade.
//
// LIFECYCLE: construct a Layer with New, submit work with Enqueue or the
// synchronous wrappers, and call Shutdown exactly once when finished. After
// Shutdown begins, all further submissions fail with ErrShuttingDown.
//
// ORDERING: the layer makes no ordering promises across operations. Two
// writes to the same record enqueued concurrently may reach the remote API
// in either order; callers that need per-resource ordering must serialize
// their own submissions.
package workrelay

import (
	"fmt"
	"time"

	"github.com/Unisami/workrelay/internal/batch"
	"github.com/Unisami/workrelay/internal/cache"
	"github.com/Unisami/workrelay/internal/metrics"
	"github.com/Unisami/workrelay/internal/pool"
	"github.com/Unisami/workrelay/internal/validate"
)

// DefaultRequestTimeout bounds individual HTTP calls to the remote API.
// There is no per-operation cancellation beyond this; Shutdown is the only
// other way to stop in-flight work.
const DefaultRequestTimeout = 30 * time.Second

// Config carries everything needed to build a Layer. Zero values are filled
// with defaults by DefaultConfig; BaseURL and AuthToken have no defaults and
// must be supplied by the caller.
type Config struct {
	// BaseURL is the root of the remote workspace-database API,
	// e.g. "https://api.example.com".
	BaseURL string

	// AuthToken is passed through as a bearer token on every request.
	// The relay does not manage or refresh credentials.
	AuthToken string

	// RequestTimeout bounds each individual HTTP request.
	RequestTimeout time.Duration

	// Pool configures the bounded worker pool that executes remote calls.
	Pool *pool.Config

	// Batch configures the coordinator's batch size, idle timeout, and
	// queue depth.
	Batch *batch.Config

	// SweepInterval controls how often the cache evicts expired entries in
	// the background. Zero or negative disables the sweeper; entries still
	// expire lazily on read.
	SweepInterval time.Duration

	// Collector, when non-nil, mirrors the monitor's counters into
	// Prometheus metrics. Optional; the in-process Stats snapshot works
	// without it.
	Collector *metrics.Collector
}

// DefaultConfig returns a Config with production defaults for everything
// except the remote endpoint and credentials.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: DefaultRequestTimeout,
		Pool:           pool.DefaultConfig(),
		Batch:          batch.DefaultConfig(),
		SweepInterval:  cache.DefaultSweepInterval,
	}
}

// Validate checks the configuration before any goroutines are started so
// that misconfiguration fails construction, not the first request.
func (c *Config) Validate() error {
	if err := validate.ValidateURL(c.BaseURL, "base URL"); err != nil {
		return err
	}
	if err := validate.ValidateRequiredString(c.AuthToken, "auth token"); err != nil {
		return err
	}
	if err := validate.ValidatePositiveTimeout(c.RequestTimeout, "request timeout"); err != nil {
		return err
	}
	if c.Pool == nil {
		return fmt.Errorf("pool configuration is required")
	}
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool configuration: %w", err)
	}
	if c.Batch == nil {
		return fmt.Errorf("batch configuration is required")
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch configuration: %w", err)
	}
	return nil
}
