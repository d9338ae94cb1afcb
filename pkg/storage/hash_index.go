package storage

import (
	"errors"
	"io"
	"sync"
)

// HashIndex maps keys to the location of their latest live frame and
// remembers keys whose latest frame is a tombstone
type HashIndex struct {
	entries    map[string]IndexEntry
	tombstones map[string]struct{}
	mutex      sync.RWMutex
}

// NewHashIndex creates a new hash index
func NewHashIndex() *HashIndex {
	return &HashIndex{
		entries:    make(map[string]IndexEntry),
		tombstones: make(map[string]struct{}),
	}
}

// Put adds or updates an index entry for a key
func (idx *HashIndex) Put(key []byte, entry IndexEntry) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries[string(key)] = entry
	delete(idx.tombstones, string(key))
}

// Get retrieves the index entry for a key
func (idx *HashIndex) Get(key []byte) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	entry, exists := idx.entries[string(key)]
	return entry, exists
}

// Tombstone removes a key's entry and marks the key as retired
func (idx *HashIndex) Tombstone(key []byte) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	delete(idx.entries, string(key))
	idx.tombstones[string(key)] = struct{}{}
}

// IsTombstoned reports whether the key's latest frame is a tombstone
func (idx *HashIndex) IsTombstoned(key []byte) bool {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	_, ok := idx.tombstones[string(key)]
	return ok
}

// TombstonedKeys returns every key whose latest frame is a tombstone
func (idx *HashIndex) TombstonedKeys() []string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	keys := make([]string, 0, len(idx.tombstones))
	for key := range idx.tombstones {
		keys = append(keys, key)
	}
	return keys
}

// Size returns the number of live keys in the index
func (idx *HashIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return len(idx.entries)
}

// Keys returns all live keys in the index
func (idx *HashIndex) Keys() []string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	keys := make([]string, 0, len(idx.entries))
	for key := range idx.entries {
		keys = append(keys, key)
	}
	return keys
}

// BuildFromLog scans a log file from the start and repopulates the index
func (idx *HashIndex) BuildFromLog(reader *LogReader) error {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = make(map[string]IndexEntry)
	idx.tombstones = make(map[string]struct{})

	if err := reader.Seek(0); err != nil {
		return err
	}

	for {
		offset := reader.Offset()
		frame, err := reader.ReadNext()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		key := string(frame.Key)
		if frame.IsTombstone() {
			delete(idx.entries, key)
			idx.tombstones[key] = struct{}{}
			continue
		}
		idx.entries[key] = IndexEntry{
			Offset:    offset,
			Size:      uint32(frame.Size()),
			Timestamp: frame.Timestamp,
		}
	}
}
