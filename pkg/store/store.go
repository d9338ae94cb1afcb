// Package store is the record store: a keyed collection of posts with
// create, read, update, delete and filtered scan.
//
// Every mutation is checked completely before the backend is touched, so a
// rejected operation leaves the stored bytes unchanged. The store holds no
// per-key locks; callers serialize operations on the same id (the ledger
// does this). Operations on different ids may run concurrently.
package store

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ssargent/tweetdb/pkg/auth"
	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/index"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/storage"
	"github.com/ssargent/tweetdb/pkg/validate"
)

// Store is the record store over a storage backend
type Store struct {
	backend storage.Backend
	codec   *codec.RecordCodec
	clock   func() time.Time
	logger  *slog.Logger

	indexes *index.IndexManager
	indexMu sync.Mutex
	indexed bool
}

// New creates a record store over backend
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		codec:   codec.NewRecordCodec(),
		clock:   time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		indexes: index.NewIndexManager(index.DefaultOrder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new record owned by owner and stamps CreatedAt.
// An id that is live or was ever deleted fails with DuplicateKey.
func (s *Store) Create(id, owner identity.PublicKey, topic, content string) (Record, error) {
	if err := s.ensureUnused(id); err != nil {
		return Record{}, err
	}
	if err := validate.Fields(topic, content); err != nil {
		return Record{}, err
	}

	r := Record{
		ID: id,
		Record: codec.Record{
			Owner:     owner,
			CreatedAt: s.clock().Unix(),
			Topic:     topic,
			Content:   content,
		},
	}
	if err := s.put(r); err != nil {
		return Record{}, err
	}
	s.indexRecord(r)

	s.logger.Debug("record created", "id", id, "owner", owner)
	return r, nil
}

// Read returns the record stored under id
func (s *Store) Read(id identity.PublicKey) (Record, error) {
	data, state, err := s.backend.Load(id)
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", id, err)
	}
	if state != storage.SlotLive {
		return Record{}, fault.New(fault.NotFound, "record %s not found", id)
	}

	decoded, err := s.codec.Decode(data)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Record: decoded}, nil
}

// Update replaces topic and content. The owner check runs before the length
// checks, so a non-owner gets NotOwner whatever the payload.
func (s *Store) Update(id, signer identity.PublicKey, topic, content string) (Record, error) {
	r, err := s.Read(id)
	if err != nil {
		return Record{}, err
	}
	if err := auth.Authorize(signer, r.Owner); err != nil {
		return Record{}, err
	}
	if err := validate.Fields(topic, content); err != nil {
		return Record{}, err
	}

	previous := r.Topic
	r.Topic = topic
	r.Content = content
	if err := s.put(r); err != nil {
		return Record{}, err
	}
	if previous != topic {
		s.topicIndex().Delete([]byte(previous), id)
		s.topicIndex().Insert([]byte(topic), id)
	}

	s.logger.Debug("record updated", "id", id)
	return r, nil
}

// Delete removes the record. Its id is retired and can never be created again.
func (s *Store) Delete(id, signer identity.PublicKey) error {
	r, err := s.Read(id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(signer, r.Owner); err != nil {
		return err
	}

	if err := s.backend.Retire(id); err != nil {
		return fmt.Errorf("retire %s: %w", id, err)
	}
	s.unindexRecord(r)

	s.logger.Debug("record deleted", "id", id)
	return nil
}

// Scan returns an iterator over the records matching every filter. The only
// error is InvalidFilter for a malformed filter.
func (s *Store) Scan(filters ...query.Filter) (*Iterator, error) {
	if err := query.ValidateAll(filters); err != nil {
		return nil, err
	}
	return newIterator(s, filters), nil
}

// Restore inserts a record with its original CreatedAt, as when importing a
// snapshot. The same duplicate and length checks as Create apply.
func (s *Store) Restore(r Record) error {
	if err := s.ensureUnused(r.ID); err != nil {
		return err
	}
	if err := validate.Fields(r.Topic, r.Content); err != nil {
		return err
	}
	if err := s.put(r); err != nil {
		return err
	}
	s.indexRecord(r)
	return nil
}

// CheckUnused returns DuplicateKey when id is live or was deleted
func (s *Store) CheckUnused(id identity.PublicKey) error {
	return s.ensureUnused(id)
}

// RestoreRetired marks an id as deleted without it ever holding a record, so
// a restored store refuses the id just as the source did.
func (s *Store) RestoreRetired(id identity.PublicKey) error {
	if err := s.ensureUnused(id); err != nil {
		return err
	}
	if err := s.backend.Retire(id); err != nil {
		return fmt.Errorf("retire %s: %w", id, err)
	}
	return nil
}

// RetiredKeys lists the ids of deleted records
func (s *Store) RetiredKeys() ([]identity.PublicKey, error) {
	return s.backend.RetiredKeys()
}

// Stats returns store statistics
func (s *Store) Stats() Stats {
	return Stats{Records: s.backend.Len()}
}

// Close closes the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) ensureUnused(id identity.PublicKey) error {
	_, state, err := s.backend.Load(id)
	if err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}
	switch state {
	case storage.SlotLive:
		return fault.New(fault.DuplicateKey, "record %s already exists", id)
	case storage.SlotRetired:
		return fault.New(fault.DuplicateKey, "record id %s was deleted and cannot be reused", id)
	}
	return nil
}

func (s *Store) put(r Record) error {
	data, err := s.codec.Encode(r.Record)
	if err != nil {
		return err
	}
	if err := s.backend.Store(r.ID, data); err != nil {
		return fmt.Errorf("store %s: %w", r.ID, err)
	}
	return nil
}
