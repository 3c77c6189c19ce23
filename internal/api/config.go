// Package api provides the HTTP ops surface for a workrelay daemon. It
// exposes the relay layer's submission paths, the read-through query cache,
// runtime statistics, and Prometheus metrics over REST so that CLI tools and
// upstream services can use the relay without linking it in-process.
package api

import (
	"fmt"

	"github.com/Unisami/workrelay"
	"github.com/Unisami/workrelay/internal/validate"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultAPIPort is the default port for the HTTP API server
	DefaultAPIPort = 8018
)

// Config holds everything the HTTP API server needs. The Layer is the
// server's only backend; the Registry is optional and enables /metrics
// when set.
type Config struct {
	BindAddr string               // HTTP server bind address (e.g., "0.0.0.0")
	BindPort int                  // HTTP server bind port
	Layer    *workrelay.Layer     // Relay layer serving all operations
	Registry *prometheus.Registry // Prometheus registry for /metrics, optional
}

// DefaultConfig returns a Config bound to loopback for safer local
// development. The daemon overrides the address for external exposure.
func DefaultConfig() *Config {
	return &Config{
		BindAddr: "127.0.0.1",
		BindPort: DefaultAPIPort,
		Layer:    nil, // must be set by caller
	}
}

// Validate checks that the server can bind and has a backend to serve.
func (c *Config) Validate() error {
	if err := validate.ValidateRequiredString(c.BindAddr, "bind address"); err != nil {
		return err
	}
	if err := validate.ValidatePortRange(c.BindPort); err != nil {
		return fmt.Errorf("bind port validation failed: %w", err)
	}
	if c.Layer == nil {
		return fmt.Errorf("relay layer cannot be nil")
	}
	return nil
}
