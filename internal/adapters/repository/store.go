// Package repository persists increment events and the running total per user.
package repository

import (
	"context"

	"github.com/okian/tally/internal/domain/model"
)

// Store is the event store. The per-user event log is authoritative; the
// totals are derived from it and kept equal to the log length.
type Store interface {
	// RecordIncrement appends one event for userID and returns the new total.
	// Both the log and the total are persisted before it returns; a failed
	// write returns an error wrapping ErrWrite.
	RecordIncrement(ctx context.Context, userID string) (int, error)

	// LoadEvents returns the user's events in append order, empty when unknown.
	LoadEvents(ctx context.Context, userID string) []model.Event

	// LoadAllTotals returns every user's total in first-insertion order.
	LoadAllTotals(ctx context.Context) *model.Totals

	// CountInWindow counts the user's events with start <= ts <= end.
	CountInWindow(ctx context.Context, userID string, start, end int64) int

	// Audit reports users whose total differs from their log length.
	Audit(ctx context.Context) ([]Discrepancy, error)

	// Reconcile rewrites totals from log lengths and returns how many changed.
	Reconcile(ctx context.Context) (int, error)

	Close() error
}

// Discrepancy is a user whose persisted total and event count disagree.
type Discrepancy struct {
	UserID string `json:"user_id"`
	Total  int    `json:"total"`
	Events int    `json:"events"`
}

func countInWindow(events []model.Event, start, end int64) int {
	n := 0
	for _, e := range events {
		if e.Timestamp >= start && e.Timestamp <= end {
			n++
		}
	}
	return n
}
