// Package storage holds the slot containers a record store persists into.
//
// A Backend maps a record id to the encoded record bytes. Every id is in one
// of three states: Empty (never used), Live (holds bytes) or Retired (was
// deleted and may never hold bytes again). Backends guard their own
// containers so operations on different ids may run concurrently; they offer
// no transactions spanning several ids.
package storage

import (
	"errors"

	"github.com/ssargent/tweetdb/pkg/identity"
)

// SlotState is the lifecycle state of an id inside a backend
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotLive
	SlotRetired
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotLive:
		return "live"
	case SlotRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Backend persists encoded records keyed by id
type Backend interface {
	// Load returns the bytes stored for id. Data is nil unless the state is SlotLive.
	Load(id identity.PublicKey) ([]byte, SlotState, error)
	// Store writes data into the slot for id, replacing any live bytes
	Store(id identity.PublicKey, data []byte) error
	// Retire removes the live bytes for id and marks the id as used
	Retire(id identity.PublicKey) error
	// LiveKeys returns the ids holding live bytes at the moment of the call
	LiveKeys() ([]identity.PublicKey, error)
	// RetiredKeys returns the ids that were deleted and may not be reused
	RetiredKeys() ([]identity.PublicKey, error)
	// Len returns the number of live slots
	Len() int
	Close() error
}

var (
	// ErrClosed is returned by operations on a closed backend
	ErrClosed = errors.New("storage: backend is closed")
	// ErrEmptyValue is returned when storing zero bytes, which no encoded record can be
	ErrEmptyValue = errors.New("storage: empty value")
)
