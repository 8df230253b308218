// Package ranking computes per-user event counts over a time window and
// orders them into a leaderboard.
package ranking

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

// Source is the read side of the event store the aggregator needs.
type Source interface {
	LoadAllTotals(ctx context.Context) *model.Totals
	CountInWindow(ctx context.Context, userID string, start, end int64) int
}

// Aggregator builds rankings from a Source.
type Aggregator struct {
	src Source
}

// New creates an Aggregator over src.
func New(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// RankBetween counts every known user's events in [start, end], drops users
// with no events in range and sorts descending by count. Ties keep the
// totals iteration order.
func (a *Aggregator) RankBetween(ctx context.Context, start, end int64) []model.RankingEntry {
	totals := a.src.LoadAllTotals(ctx)
	entries := make([]model.RankingEntry, 0, totals.Len())
	totals.Each(func(userID string, total int) bool {
		if total <= 0 {
			return true
		}
		if n := a.src.CountInWindow(ctx, userID, start, end); n > 0 {
			entries = append(entries, model.RankingEntry{UserID: userID, Count: n})
		}
		return ctx.Err() == nil
	})
	SortDesc(entries)
	return entries
}

// Rank resolves window against now. The total window reads the running
// totals directly instead of scanning event logs.
func (a *Aggregator) Rank(ctx context.Context, window model.Window, now time.Time) []model.RankingEntry {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency(window.String(), float64(time.Since(start).Microseconds())/1000)
	}()
	metrics.RecordRankingRequest(window.String())

	var entries []model.RankingEntry
	if window == model.WindowTotal {
		entries = fromTotals(a.src.LoadAllTotals(ctx))
	} else {
		from, to := window.Bounds(now)
		entries = a.RankBetween(ctx, from, to)
	}
	if len(entries) == 0 {
		metrics.RecordRankingEmpty(window.String())
	}
	return entries
}

func fromTotals(totals *model.Totals) []model.RankingEntry {
	entries := slices.DeleteFunc(totals.Entries(), func(e model.RankingEntry) bool {
		return e.Count <= 0
	})
	SortDesc(entries)
	return entries
}

// SortDesc sorts entries by count, highest first, keeping the relative
// order of equal counts.
func SortDesc(entries []model.RankingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
}

// Top returns at most n leading entries.
func Top(entries []model.RankingEntry, n int) []model.RankingEntry {
	if n < 0 {
		n = 0
	}
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
