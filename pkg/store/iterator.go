package store

import (
	"fmt"

	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/storage"
)

// Iterator walks the records matching a scan. The candidate ids are captured
// on the first call to Next, not by Scan, so a record created between Scan
// and that first Next is seen. Records are loaded lazily: those created after
// the first Next are not seen and those deleted meanwhile are skipped. Order
// is unspecified.
//
//	it, err := s.Scan(query.OwnerIs(owner))
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for it.Next() {
//	    r := it.Record()
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
type Iterator struct {
	store   *Store
	filters []query.Filter
	keys    []identity.PublicKey
	pos     int
	current Record
	err     error
	started bool
}

func newIterator(s *Store, filters []query.Filter) *Iterator {
	return &Iterator{store: s, filters: filters}
}

// Next advances to the next matching record
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		keys, err := it.store.candidates(it.filters)
		if err != nil {
			it.err = fmt.Errorf("list candidate keys: %w", err)
			return false
		}
		it.keys = keys
		it.pos = 0
		it.started = true
	}

	for it.pos < len(it.keys) {
		id := it.keys[it.pos]
		it.pos++

		data, state, err := it.store.backend.Load(id)
		if err != nil {
			it.err = fmt.Errorf("load %s: %w", id, err)
			return false
		}
		if state != storage.SlotLive || !query.MatchAll(it.filters, data) {
			continue
		}

		decoded, err := it.store.codec.Decode(data)
		if err != nil {
			it.store.logger.Warn("skipping undecodable record", "id", id, "error", err)
			continue
		}
		it.current = Record{ID: id, Record: decoded}
		return true
	}
	return false
}

// Record returns the current record
func (it *Iterator) Record() Record {
	return it.current
}

// Err returns the backend error that stopped iteration, if any
func (it *Iterator) Err() error {
	return it.err
}

// Rewind restarts the scan from a fresh snapshot of live ids
func (it *Iterator) Rewind() {
	it.started = false
	it.keys = nil
	it.pos = 0
	it.current = Record{}
	it.err = nil
}

// Close releases the snapshot
func (it *Iterator) Close() error {
	it.keys = nil
	it.pos = 0
	it.started = true
	return nil
}

// All drains the iterator into a slice
func (it *Iterator) All() ([]Record, error) {
	var records []Record
	for it.Next() {
		records = append(records, it.Record())
	}
	return records, it.Err()
}
