package loadgen

import (
	"fmt"

	"github.com/okian/tally/internal/domain/model"
)

// verifyLeaderboard checks that lb is sorted and that every planned user it
// shows carries exactly the planned total. Users from earlier runs may share
// the leaderboard; they are only checked for ordering.
func verifyLeaderboard(plan *Plan, lb model.Leaderboard) error {
	if len(lb.Entries) == 0 {
		return fmt.Errorf("%w: empty leaderboard", ErrVerification)
	}

	for i := 1; i < len(lb.Entries); i++ {
		if lb.Entries[i].Count > lb.Entries[i-1].Count {
			return fmt.Errorf("%w: leaderboard not sorted: entry %d has a higher count than entry %d",
				ErrVerification, i, i-1)
		}
	}

	foreign := false
	for _, e := range lb.Entries {
		want, ok := plan.Expected[e.UserID]
		if !ok {
			foreign = true
			continue
		}
		if e.Count != want {
			return fmt.Errorf("%w: user %s has %d, planned %d", ErrVerification, e.UserID, e.Count, want)
		}
	}

	if !foreign {
		top := expectedRanking(plan)[0]
		if lb.Entries[0].Count != top.Count {
			return fmt.Errorf("%w: top count %d, planned %d", ErrVerification, lb.Entries[0].Count, top.Count)
		}
	}
	return nil
}

// verifySubmission checks that every planned request was answered and that
// exactly the retries were replayed.
func verifySubmission(plan *Plan, stats *Stats) error {
	if stats.Submitted != len(plan.Increments) {
		return fmt.Errorf("%w: submitted %d of %d requests", ErrVerification, stats.Submitted, len(plan.Increments))
	}
	if want := plan.Retries(); stats.Replayed != want {
		return fmt.Errorf("%w: %d replays, planned %d retries", ErrVerification, stats.Replayed, want)
	}
	return nil
}
