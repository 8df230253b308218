package loadgen

import (
	"context"
	"crypto/rand"
	"math/big"
	"sort"

	"github.com/google/uuid"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// weightScale keeps integer weights precise for a few thousand users.
const weightScale = 1_000_000

// randIntn returns a uniform int in [0, n) using crypto/rand.
func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// BuildPlan draws cfg.Increments increments over cfg.Users fresh users.
// Every user gets at least one; the rest follow a 1/rank skew so the
// leaderboard has a clear head. RetryPercent of the distinct increments are
// resent later with the same key and must not change any total.
func BuildPlan(ctx context.Context, cfg *Config) (*Plan, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger.Get().Info(ctx, "building load plan",
		logger.Int("users", cfg.Users),
		logger.Int("increments", cfg.Increments),
		logger.Int("retryPercent", cfg.RetryPercent))

	users := make([]string, cfg.Users)
	cumulative := make([]int64, cfg.Users)
	var total int64
	for i := range users {
		users[i] = userIDPrefix + uuid.NewString()
		total += weightScale / int64(i+1)
		cumulative[i] = total
	}

	plan := &Plan{
		Users:      users,
		Increments: make([]Increment, 0, cfg.Increments+cfg.Increments*cfg.RetryPercent/PercentageMultiplier),
		Expected:   make(map[string]int, cfg.Users),
	}
	add := func(userID string) {
		plan.Increments = append(plan.Increments, Increment{UserID: userID, Key: uuid.NewString()})
		plan.Expected[userID]++
	}

	for _, id := range users {
		add(id)
	}
	for i := cfg.Users; i < cfg.Increments; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pick := int64(randIntn(int(total)))
		idx := sort.Search(len(cumulative), func(j int) bool { return cumulative[j] > pick })
		add(users[idx])
	}

	retries := cfg.Increments * cfg.RetryPercent / PercentageMultiplier
	for i := 0; i < retries; i++ {
		orig := plan.Increments[randIntn(cfg.Increments)]
		plan.Increments = append(plan.Increments, Increment{UserID: orig.UserID, Key: orig.Key, Retry: true})
	}

	logger.Get().Info(ctx, "load plan ready",
		logger.Int("requests", len(plan.Increments)),
		logger.Int("retries", retries))
	return plan, nil
}

// expectedRanking returns the planned totals sorted descending.
func expectedRanking(plan *Plan) []model.RankedUser {
	out := make([]model.RankedUser, 0, len(plan.Expected))
	for _, id := range plan.Users {
		out = append(out, model.RankedUser{UserID: id, Count: plan.Expected[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
