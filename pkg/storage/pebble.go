package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/ssargent/tweetdb/pkg/identity"
)

var (
	livePrefix    = []byte("r/")
	retiredPrefix = []byte("x/")
)

// PebbleOptions tunes the pebble backend
type PebbleOptions struct {
	// Sync makes every write wait for the WAL to reach disk
	Sync bool
}

// PebbleBackend stores live slots under r/<id> and retired ids under x/<id>
type PebbleBackend struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	mu    sync.Mutex // serializes writes so the live count stays exact
	count int
}

// NewPebbleBackend opens (or creates) a pebble database at path
func NewPebbleBackend(path string, opts PebbleOptions) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}

	b := &PebbleBackend{db: db, writeOpts: pebble.NoSync}
	if opts.Sync {
		b.writeOpts = pebble.Sync
	}

	keys, err := b.LiveKeys()
	if err != nil {
		db.Close()
		return nil, err
	}
	b.count = len(keys)

	return b, nil
}

func liveKey(id identity.PublicKey) []byte {
	return append(append([]byte(nil), livePrefix...), id[:]...)
}

func retiredKey(id identity.PublicKey) []byte {
	return append(append([]byte(nil), retiredPrefix...), id[:]...)
}

func (b *PebbleBackend) Load(id identity.PublicKey) ([]byte, SlotState, error) {
	data, closer, err := b.db.Get(liveKey(id))
	if err == nil {
		defer closer.Close()
		return append([]byte(nil), data...), SlotLive, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return nil, SlotEmpty, err
	}

	_, closer, err = b.db.Get(retiredKey(id))
	if err == nil {
		closer.Close()
		return nil, SlotRetired, nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, SlotEmpty, nil
	}
	return nil, SlotEmpty, err
}

func (b *PebbleBackend) Store(id identity.PublicKey, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyValue
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	exists, err := b.has(liveKey(id))
	if err != nil {
		return err
	}
	if err := b.db.Set(liveKey(id), data, b.writeOpts); err != nil {
		return err
	}
	if !exists {
		b.count++
	}
	return nil
}

// Retire deletes the live slot and records the id in one atomic batch
func (b *PebbleBackend) Retire(id identity.PublicKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	exists, err := b.has(liveKey(id))
	if err != nil {
		return err
	}

	batch := b.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete(liveKey(id), nil); err != nil {
		return err
	}
	if err := batch.Set(retiredKey(id), []byte{1}, nil); err != nil {
		return err
	}
	if err := batch.Commit(b.writeOpts); err != nil {
		return err
	}
	if exists {
		b.count--
	}
	return nil
}

func (b *PebbleBackend) LiveKeys() ([]identity.PublicKey, error) {
	return b.keysWithPrefix(livePrefix)
}

func (b *PebbleBackend) RetiredKeys() ([]identity.PublicKey, error) {
	return b.keysWithPrefix(retiredPrefix)
}

// keysWithPrefix lists the ids stored under a two-byte "<c>/" prefix
func (b *PebbleBackend) keysWithPrefix(prefix []byte) ([]identity.PublicKey, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: []byte{prefix[0], '0'}, // '0' follows '/'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []identity.PublicKey
	for iter.First(); iter.Valid(); iter.Next() {
		raw := iter.Key()[len(prefix):]
		if len(raw) != identity.PublicKeySize {
			continue
		}
		var id identity.PublicKey
		copy(id[:], raw)
		keys = append(keys, id)
	}
	return keys, iter.Error()
}

func (b *PebbleBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *PebbleBackend) Close() error {
	return b.db.Close()
}

func (b *PebbleBackend) has(key []byte) (bool, error) {
	_, closer, err := b.db.Get(key)
	if err == nil {
		closer.Close()
		return true, nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	return false, err
}
