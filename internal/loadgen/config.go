// Package loadgen drives a running tally service with synthetic increments
// and checks that the leaderboard and audit agree with what was sent.
package loadgen

import (
	"fmt"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Users        int           // Number of synthetic users
	Increments   int           // Number of distinct increments to record
	RetryPercent int           // Share of increments resent with the same idempotency key
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Verbose      bool          // Log every failure
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.Users < 1:
		return fmt.Errorf("%w: users must be positive", ErrInvalidConfig)
	case c.Increments < c.Users:
		return fmt.Errorf("%w: increments must be at least users", ErrInvalidConfig)
	case c.RetryPercent < 0 || c.RetryPercent > PercentageMultiplier:
		return fmt.Errorf("%w: retry percent must be within 0..100", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Increment is one POST /increments request.
type Increment struct {
	UserID string
	Key    string
	Retry  bool // resends an earlier Key
}

// Plan is the request sequence of a run and the totals it should produce.
type Plan struct {
	Users      []string
	Increments []Increment
	Expected   map[string]int
}

// Retries counts the requests that resend an earlier key.
func (p *Plan) Retries() int {
	n := 0
	for _, inc := range p.Increments {
		if inc.Retry {
			n++
		}
	}
	return n
}

// Stats holds run statistics.
type Stats struct {
	Planned     int
	Submitted   int
	Recorded    int
	Replayed    int
	Failed      int
	RankedUsers int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
