package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Unisami/workrelay/internal/logging"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0-dev" // Version information

	DefaultAPIAddr = "127.0.0.1:8018" // Default daemon API address
)

// Global configuration
var global struct {
	APIAddr  string        // Daemon API address
	Timeout  time.Duration // Request timeout
	LogLevel string        // Log level: DEBUG, INFO, WARN, ERROR
}

// Flags for the store and update commands
var recordFlags struct {
	Properties string // JSON object of record properties
}

// Flags for the query command
var queryFlags struct {
	Key        string // Cache key for the result
	Filter     string // JSON filter object
	TTLSeconds int    // Cache TTL for the result
}

// Root command
var rootCmd = &cobra.Command{
	Use:   "workrelayctl",
	Short: "CLI for a workrelayd batching relay daemon",
	Long: `workrelayctl talks to a running workrelayd instance: store records,
run cached queries, and inspect the relay's runtime statistics.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.ValidateLogLevel(global.LogLevel); err != nil {
			return err
		}
		logging.SetLevel(global.LogLevel)
		return nil
	},
	Example: `  # Store a record and print its ID
  workrelayctl store --properties='{"Name":"First item"}'

  # Update an existing record
  workrelayctl update rec-42 --properties='{"Status":"Done"}'

  # Run a cached query
  workrelayctl query --key=open-items --filter='{"Status":"Open"}' --ttl=120

  # Inspect relay counters
  workrelayctl --api=192.168.1.100:8018 stats`,
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Create a record synchronously and print its ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		properties, err := parseJSONObject(recordFlags.Properties, "--properties")
		if err != nil {
			return err
		}

		id, err := newAPIClient(global.APIAddr, global.Timeout).Store(properties)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <record-id>",
	Short: "Enqueue an update for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		properties, err := parseJSONObject(recordFlags.Properties, "--properties")
		if err != nil {
			return err
		}

		if err := newAPIClient(global.APIAddr, global.Timeout).Update(args[0], properties); err != nil {
			return err
		}
		logging.Success("Update for %s accepted", args[0])
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a cached query against the upstream database",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter map[string]any
		if queryFlags.Filter != "" {
			parsed, err := parseJSONObject(queryFlags.Filter, "--filter")
			if err != nil {
				return err
			}
			filter = parsed
		}

		body, err := newAPIClient(global.APIAddr, global.Timeout).
			Query(queryFlags.Key, filter, queryFlags.TTLSeconds)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show relay request, cache, and latency counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := newAPIClient(global.APIAddr, global.Timeout).Stats()
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := newAPIClient(global.APIAddr, global.Timeout).Health()
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

// parseJSONObject decodes a flag value that must be a JSON object.
func parseJSONObject(raw, flagName string) (map[string]any, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s is required", flagName)
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(raw), &object); err != nil {
		return nil, fmt.Errorf("%s must be a JSON object: %w", flagName, err)
	}
	return object, nil
}

// printJSON re-indents a raw JSON document for terminal output.
func printJSON(body json.RawMessage) error {
	var buf any
	if err := json.Unmarshal(body, &buf); err != nil {
		fmt.Println(string(body))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&global.APIAddr, "api", DefaultAPIAddr,
		"Address of the workrelayd API server")
	rootCmd.PersistentFlags().DurationVar(&global.Timeout, "timeout", 10*time.Second,
		"Request timeout")
	rootCmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "ERROR",
		"Log level: DEBUG, INFO, WARN, ERROR")

	storeCmd.Flags().StringVar(&recordFlags.Properties, "properties", "",
		"Record properties as a JSON object (required)")
	updateCmd.Flags().StringVar(&recordFlags.Properties, "properties", "",
		"Record properties as a JSON object (required)")

	queryCmd.Flags().StringVar(&queryFlags.Key, "key", "",
		"Cache key for the query result (required)")
	queryCmd.Flags().StringVar(&queryFlags.Filter, "filter", "",
		"Upstream filter as a JSON object")
	queryCmd.Flags().IntVar(&queryFlags.TTLSeconds, "ttl", 0,
		"Cache TTL in seconds (0 uses the daemon default)")
	queryCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(storeCmd, updateCmd, queryCmd, statsCmd, healthCmd)
}

// Main entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
