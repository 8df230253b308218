package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/tally/internal/loadgen"
)

// Default configuration constants.
const (
	defaultUsers        = 50
	defaultIncrements   = 2000
	defaultRetryPercent = 10
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users      = flag.Int("users", defaultUsers, "Number of synthetic users")
		increments = flag.Int("increments", defaultIncrements, "Number of distinct increments")
		retry      = flag.Int("retry", defaultRetryPercent, "Percent of increments resent with the same key")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := loadgen.SetupLogging(*verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:      *baseURL,
		Users:        *users,
		Increments:   *increments,
		RetryPercent: *retry,
		Workers:      *workers,
		Timeout:      *timeout,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called above
	}
}
