package storage

import (
	"sync"

	"github.com/ssargent/tweetdb/pkg/identity"
)

// MemoryBackend keeps slots in a hash map. It is the default for tests and
// for the CLI when no data directory is wanted.
type MemoryBackend struct {
	mu      sync.RWMutex
	slots   map[identity.PublicKey][]byte
	retired map[identity.PublicKey]struct{}
	closed  bool
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		slots:   make(map[identity.PublicKey][]byte),
		retired: make(map[identity.PublicKey]struct{}),
	}
}

func (m *MemoryBackend) Load(id identity.PublicKey) ([]byte, SlotState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, SlotEmpty, ErrClosed
	}
	if data, ok := m.slots[id]; ok {
		return append([]byte(nil), data...), SlotLive, nil
	}
	if _, ok := m.retired[id]; ok {
		return nil, SlotRetired, nil
	}
	return nil, SlotEmpty, nil
}

func (m *MemoryBackend) Store(id identity.PublicKey, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyValue
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.slots[id] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Retire(id identity.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.slots, id)
	m.retired[id] = struct{}{}
	return nil
}

func (m *MemoryBackend) LiveKeys() ([]identity.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]identity.PublicKey, 0, len(m.slots))
	for id := range m.slots {
		keys = append(keys, id)
	}
	return keys, nil
}

func (m *MemoryBackend) RetiredKeys() ([]identity.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]identity.PublicKey, 0, len(m.retired))
	for id := range m.retired {
		keys = append(keys, id)
	}
	return keys, nil
}

func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
