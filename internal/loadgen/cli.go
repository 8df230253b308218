package loadgen

import (
	"fmt"
	"os"

	"github.com/okian/tally/pkg/logger"
)

// SetupLogging initializes the global logger; verbose enables debug output.
func SetupLogging(verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`tally load generator
====================

Sends synthetic increments to a running tally service, resends a share of
them with the same Idempotency-Key, then checks the weekly leaderboard and
the audit report.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of synthetic users (default 50)
  -increments int
        Number of distinct increments (default 2000)
  -retry int
        Percent of increments resent with the same key (default 10)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run ./cmd/loadgen

  # Heavier run against another port
  go run ./cmd/loadgen -users 500 -increments 20000 -url http://localhost:8080
`)
}
