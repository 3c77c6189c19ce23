// Package main implements the workrelay daemon (workrelayd).
// workrelayd fronts a rate-limited workspace-database HTTP API with a
// batching relay: writes coalesce into batches executed over a bounded
// connection pool, and reads go through a TTL cache with write-invalidation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Unisami/workrelay"
	"github.com/Unisami/workrelay/internal/api"
	"github.com/Unisami/workrelay/internal/logging"
	"github.com/Unisami/workrelay/internal/metrics"
	"github.com/Unisami/workrelay/internal/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0-dev" // Version information

	DefaultListen = "127.0.0.1:8018" // Default API listen address

	// TokenEnvVar names the environment variable consulted when --token is
	// not given, keeping credentials out of process listings.
	TokenEnvVar = "WORKRELAY_TOKEN"
)

// Global configuration
var config struct {
	ListenAddr     string        // API listen address
	ListenHost     string        // Parsed host portion
	ListenPort     int           // Parsed port portion
	UpstreamURL    string        // Base URL of the workspace-database API
	Token          string        // Bearer token for the upstream API
	BatchSize      int           // Operations per flush
	FlushInterval  time.Duration // Idle timeout before a partial flush
	MaxConnections int           // Worker pool size
	RequestTimeout time.Duration // Per-request timeout against the upstream
	LogLevel       string        // Log level: DEBUG, INFO, WARN, ERROR
	LogFile        string        // Optional log file path
}

// Root command
var rootCmd = &cobra.Command{
	Use:   "workrelayd",
	Short: "Batching relay daemon for a rate-limited workspace-database API",
	Long: `workrelayd exposes a REST API that relays record writes and queries to a
paginated, rate-limited workspace-database HTTP API.

Writes are coalesced into batches and executed over a bounded connection
pool; queries are served through a TTL cache that is invalidated whenever
the relay writes to a record.`,
	Version: Version,
	Example: `  # Relay for a workspace database, token from the environment
  WORKRELAY_TOKEN=secret workrelayd --upstream-url=https://api.example.com

  # Expose the API externally with a larger pool and faster flushes
  workrelayd --listen=0.0.0.0:8018 --upstream-url=https://api.example.com \
    --token=secret --max-connections=8 --flush-interval=250ms`,
	PreRunE: validateConfig,
	RunE:    runDaemon,
}

func init() {
	// Network flags
	rootCmd.Flags().StringVar(&config.ListenAddr, "listen", DefaultListen,
		"Address and port for the relay API (e.g., 0.0.0.0:8018)")
	rootCmd.Flags().StringVar(&config.UpstreamURL, "upstream-url", "",
		"Base URL of the upstream workspace-database API (required)")
	rootCmd.Flags().StringVar(&config.Token, "token", "",
		"Bearer token for the upstream API (defaults to $"+TokenEnvVar+")")

	// Relay tuning flags
	rootCmd.Flags().IntVar(&config.BatchSize, "batch-size", 0,
		"Operations per batch flush (0 uses the built-in default)")
	rootCmd.Flags().DurationVar(&config.FlushInterval, "flush-interval", 0,
		"Idle time before a partial batch is flushed (0 uses the built-in default)")
	rootCmd.Flags().IntVar(&config.MaxConnections, "max-connections", 0,
		"Concurrent connections to the upstream API (0 uses the built-in default)")
	rootCmd.Flags().DurationVar(&config.RequestTimeout, "request-timeout", 0,
		"Timeout per upstream HTTP request (0 uses the built-in default)")

	// Operational flags
	rootCmd.Flags().StringVar(&config.LogLevel, "log-level", "INFO",
		"Log level: DEBUG, INFO, WARN, ERROR")
	rootCmd.Flags().StringVar(&config.LogFile, "log-file", "",
		"Write logs to this file instead of stdout")
}

// Validates configuration before running
func validateConfig(cmd *cobra.Command, args []string) error {
	host, port, err := validate.ParseListenAddress(config.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	config.ListenHost = host
	config.ListenPort = port

	if err := validate.ValidateURL(config.UpstreamURL, "upstream URL"); err != nil {
		return err
	}

	if config.Token == "" {
		config.Token = os.Getenv(TokenEnvVar)
	}
	if err := validate.ValidateRequiredString(config.Token, "upstream token"); err != nil {
		return fmt.Errorf("%w (pass --token or set $%s)", err, TokenEnvVar)
	}

	if err := logging.ValidateLogLevel(config.LogLevel); err != nil {
		return err
	}

	return nil
}

// Converts daemon flags to a relay layer config, keeping library defaults
// for anything the operator did not override.
func buildLayerConfig(collector *metrics.Collector) *workrelay.Config {
	layerConfig := workrelay.DefaultConfig()
	layerConfig.BaseURL = config.UpstreamURL
	layerConfig.AuthToken = config.Token
	layerConfig.Collector = collector

	if config.BatchSize > 0 {
		layerConfig.Batch.BatchSize = config.BatchSize
	}
	if config.FlushInterval > 0 {
		layerConfig.Batch.IdleTimeout = config.FlushInterval
	}
	if config.MaxConnections > 0 {
		layerConfig.Pool.MaxConnections = config.MaxConnections
	}
	if config.RequestTimeout > 0 {
		layerConfig.RequestTimeout = config.RequestTimeout
	}
	return layerConfig
}

// Runs the daemon with graceful shutdown handling
func runDaemon(cmd *cobra.Command, args []string) error {
	logging.SetLevel(config.LogLevel)
	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer file.Close()
		logging.SetOutput(file)
	}

	logging.Info("Starting workrelay daemon v%s", Version)
	logging.Info("Upstream: %s", config.UpstreamURL)
	logging.Info("Listening on %s:%d", config.ListenHost, config.ListenPort)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(registry)

	layerConfig := buildLayerConfig(collector)
	if err := layerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid relay configuration: %w", err)
	}

	layer, err := workrelay.New(layerConfig)
	if err != nil {
		return fmt.Errorf("failed to create relay layer: %w", err)
	}

	apiConfig := api.DefaultConfig()
	apiConfig.BindAddr = config.ListenHost
	apiConfig.BindPort = config.ListenPort
	apiConfig.Layer = layer
	apiConfig.Registry = registry
	if err := apiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid API configuration: %w", err)
	}

	server := api.NewServer(apiConfig)
	if err := server.Start(); err != nil {
		layer.Shutdown(5 * time.Second)
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Success("workrelay daemon started successfully")
	logging.Info("Daemon running... Press Ctrl+C to shutdown")

	sig := <-sigCh
	logging.Info("Received signal: %v", sig)

	// Graceful shutdown: stop accepting HTTP first, then drain the relay so
	// requests in flight during the HTTP drain can still complete.
	logging.Info("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error("Error shutting down API server: %v", err)
	}

	if drained := layer.Shutdown(15 * time.Second); !drained {
		logging.Warn("Relay layer abandoned in-flight work during shutdown")
	}

	logging.Success("workrelay daemon shutdown completed")
	return nil
}

// Main entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
