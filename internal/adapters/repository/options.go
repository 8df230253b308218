package repository

import (
	"time"

	"github.com/okian/tally/pkg/logger"
)

type settings struct {
	now func() time.Time
	log logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock sets the clock used to stamp new events.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report unreadable state.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
