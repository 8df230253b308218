package model

import (
	"fmt"
	"strings"
	"time"
)

// Window selects the time range a ranking is computed over.
type Window string

const (
	WindowTotal  Window = "total"
	WindowYearly Window = "yearly"
	WindowWeekly Window = "weekly"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

// Windows lists every supported window.
func Windows() []Window {
	return []Window{WindowTotal, WindowYearly, WindowWeekly}
}

// ParseWindow maps a selector to a Window. An empty selector means total.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowTotal, nil
	case WindowTotal, WindowYearly, WindowWeekly:
		return w, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
}

// Bounds returns the closed interval [start, end] in epoch milliseconds
// ending at now. The total window starts at 0.
func (w Window) Bounds(now time.Time) (start, end int64) {
	end = now.UnixMilli()
	switch w {
	case WindowYearly:
		return now.Add(-year).UnixMilli(), end
	case WindowWeekly:
		return now.Add(-week).UnixMilli(), end
	default:
		return 0, end
	}
}

// Title is the capitalised window name used in chart titles.
func (w Window) Title() string {
	switch w {
	case WindowYearly:
		return "Yearly"
	case WindowWeekly:
		return "Weekly"
	default:
		return "Total"
	}
}

func (w Window) String() string { return string(w) }
