package store

import (
	"fmt"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/index"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/storage"
)

// Owner and topic indexes narrow scans with an exact owner or topic filter.
// Entries are added on every write, even before the first scan builds the
// index from the backend, so an index never misses a live record. It may
// hold stale ids; the iterator re-checks every candidate against the
// backend and the filters.

func (s *Store) ownerIndex() *index.SecondaryIndex {
	return s.indexes.GetOrCreateIndex(string(codec.FieldOwner))
}

func (s *Store) topicIndex() *index.SecondaryIndex {
	return s.indexes.GetOrCreateIndex(string(codec.FieldTopic))
}

func (s *Store) indexRecord(r Record) {
	s.ownerIndex().Insert(r.Owner.Bytes(), r.ID)
	s.topicIndex().Insert([]byte(r.Topic), r.ID)
}

func (s *Store) unindexRecord(r Record) {
	s.ownerIndex().Delete(r.Owner.Bytes(), r.ID)
	s.topicIndex().Delete([]byte(r.Topic), r.ID)
}

// buildIndexes loads every live record into the indexes once
func (s *Store) buildIndexes() error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexed {
		return nil
	}

	keys, err := s.backend.LiveKeys()
	if err != nil {
		return fmt.Errorf("list live keys: %w", err)
	}
	for _, id := range keys {
		data, state, err := s.backend.Load(id)
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
		if state != storage.SlotLive {
			continue
		}
		decoded, err := s.codec.Decode(data)
		if err != nil {
			continue
		}
		s.indexRecord(Record{ID: id, Record: decoded})
	}

	s.indexed = true
	s.logger.Debug("record indexes built", "records", len(keys))
	return nil
}

// candidates returns the ids a scan with filters must visit: the smallest
// index hit when a filter is indexable, every live id otherwise
func (s *Store) candidates(filters []query.Filter) ([]identity.PublicKey, error) {
	var best []identity.PublicKey
	found := false

	for _, f := range filters {
		idx, value, ok := s.indexFor(f)
		if !ok {
			continue
		}
		if err := s.buildIndexes(); err != nil {
			s.logger.Warn("scanning without index", "error", err)
			break
		}
		ids := idx.Search(value)
		if !found || len(ids) < len(best) {
			best, found = ids, true
		}
	}

	if found {
		return best, nil
	}
	return s.backend.LiveKeys()
}

func (s *Store) indexFor(f query.Filter) (*index.SecondaryIndex, []byte, bool) {
	switch m := f.(type) {
	case *query.Memcmp:
		if m == nil {
			return nil, nil, false
		}
		return s.indexFor(*m)
	case *query.FieldMatch:
		if m == nil {
			return nil, nil, false
		}
		return s.indexFor(*m)
	case query.Memcmp:
		if m.Offset == codec.OwnerOffset && len(m.Bytes) == identity.PublicKeySize {
			return s.ownerIndex(), m.Bytes, true
		}
	case query.FieldMatch:
		if m.Prefix {
			return nil, nil, false
		}
		switch m.Field {
		case codec.FieldOwner:
			if len(m.Value) == identity.PublicKeySize {
				return s.ownerIndex(), m.Value, true
			}
		case codec.FieldTopic:
			return s.topicIndex(), m.Value, true
		}
	}
	return nil, nil, false
}
