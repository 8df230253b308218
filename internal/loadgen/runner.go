package loadgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// Run executes a complete load run: plan, submit, then verify.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting tally load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("increments", config.Increments),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.healthy(ctx); err != nil {
		return stats, err
	}

	// Step 2: Build the request plan
	plan, err := BuildPlan(ctx, config)
	if err != nil {
		return stats, fmt.Errorf("plan generation failed: %w", err)
	}
	stats.Planned = len(plan.Increments)

	// Step 3: Submit increments concurrently
	submitIncrements(ctx, client, config, plan, stats)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%w: %d increments failed", ErrVerification, stats.Failed)
	}

	// Step 4: Verify the leaderboard and the audit
	lb, err := client.leaderboard(ctx, model.WindowWeekly)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.RankedUsers = lb.Participants
	if err := verifyLeaderboard(plan, lb); err != nil {
		return stats, err
	}
	if err := verifySubmission(plan, stats); err != nil {
		return stats, err
	}
	report, err := client.audit(ctx)
	if err != nil {
		return stats, fmt.Errorf("audit retrieval failed: %w", err)
	}
	if !report.Consistent {
		return stats, fmt.Errorf("%w: %d users drifted from their event logs", ErrVerification, len(report.Discrepancies))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	displayTopUsers(ctx, lb)

	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

// submitIncrements sends the plan through a worker pool.
func submitIncrements(ctx context.Context, client *HTTPClient, config *Config, plan *Plan, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting increments",
		logger.Int("requests", len(plan.Increments)),
		logger.Int("workers", config.Workers))

	var submitted, recorded, replayed, failed atomic.Int64

	incChan := make(chan Increment, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inc := range incChan {
				submitted.Add(1)
				resp, err := client.postIncrement(ctx, inc)
				switch {
				case err != nil:
					failed.Add(1)
					if config.Verbose {
						log.Warn(ctx, "increment failed", logger.String("user_id", inc.UserID), logger.Error(err))
					}
				case resp.Replayed:
					replayed.Add(1)
				default:
					recorded.Add(1)
				}
			}
		}()
	}

	go func() {
		defer close(incChan)
		for _, inc := range plan.Increments {
			select {
			case <-ctx.Done():
				return
			case incChan <- inc:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Recorded = int(recorded.Load())
	stats.Replayed = int(replayed.Load())
	stats.Failed = int(failed.Load())

	log.Info(ctx, "increment submission completed",
		logger.Int("recorded", stats.Recorded),
		logger.Int("replayed", stats.Replayed),
		logger.Int("failed", stats.Failed))
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, requestsPerSecond float64

	if stats.Submitted > 0 {
		successRate = float64(stats.Recorded+stats.Replayed) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("planned", stats.Planned),
		logger.Int("submitted", stats.Submitted),
		logger.Int("recorded", stats.Recorded),
		logger.Int("replayed", stats.Replayed),
		logger.Int("failed", stats.Failed),
		logger.Int("rankedUsers", stats.RankedUsers),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}

// displayTopUsers logs the weekly leaderboard head.
func displayTopUsers(ctx context.Context, lb model.Leaderboard) {
	for _, e := range lb.Entries {
		logger.Get().Info(ctx, "leaderboard entry",
			logger.Int("rank", e.Rank),
			logger.String("user_id", e.UserID),
			logger.Int("count", e.Count))
	}
}
