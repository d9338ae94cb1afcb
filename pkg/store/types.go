package store

import (
	"log/slog"
	"time"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// Record is a stored post together with the id it is stored under
type Record struct {
	ID identity.PublicKey `json:"id"`
	codec.Record
}

// CreatedTime returns CreatedAt as a time.Time
func (r Record) CreatedTime() time.Time {
	return time.Unix(r.CreatedAt, 0).UTC()
}

// Stats holds statistics about the store
type Stats struct {
	Records int
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used to stamp CreatedAt
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLogger sets the logger; nil discards
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}
