// Package contribution buckets a user's events by calendar day.
package contribution

import (
	"context"
	"sort"
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// BucketByDay shifts every timestamp by offsetMinutes and counts events per
// resulting UTC date. Days without events are absent.
func BucketByDay(events []model.Event, offsetMinutes int) map[string]int {
	offset := time.Duration(offsetMinutes) * time.Minute
	out := make(map[string]int)
	for _, e := range events {
		out[e.Time().Add(offset).Format(model.DateLayout)]++
	}
	return out
}

// Sorted returns the buckets ordered by date ascending.
func Sorted(days map[string]int) []model.ContributionBucket {
	out := make([]model.ContributionBucket, 0, len(days))
	for date, n := range days {
		out = append(out, model.ContributionBucket{Date: date, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// EventSource loads one user's events.
type EventSource interface {
	LoadEvents(ctx context.Context, userID string) []model.Event
}

// Aggregator buckets events loaded from an EventSource.
type Aggregator struct {
	src EventSource
}

// New creates an Aggregator over src.
func New(src EventSource) *Aggregator {
	return &Aggregator{src: src}
}

// BucketByDay loads userID's events and buckets them. Unknown users yield an empty map.
func (a *Aggregator) BucketByDay(ctx context.Context, userID string, offsetMinutes int) map[string]int {
	return BucketByDay(a.src.LoadEvents(ctx, userID), offsetMinutes)
}
