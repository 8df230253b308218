// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// Event is one increment action. Timestamp is epoch milliseconds.
type Event struct {
	Timestamp int64 `json:"timestamp"`
}

// NewEvent stamps an event with t.
func NewEvent(t time.Time) Event {
	return Event{Timestamp: t.UnixMilli()}
}

// Time returns the event timestamp as a UTC time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// RankingEntry is a user's event count within a window. It is derived and never persisted.
type RankingEntry struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// DateLayout is the YYYY-MM-DD key format of per-day contribution counts.
const DateLayout = "2006-01-02"

// ContributionBucket is the number of events on one calendar day (YYYY-MM-DD).
type ContributionBucket struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateUserID rejects identifiers that cannot safely name a persisted record.
func ValidateUserID(userID string) error {
	if !userIDPattern.MatchString(userID) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return nil
}
