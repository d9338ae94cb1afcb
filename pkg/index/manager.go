// Package index keeps in-memory secondary indexes from a field value to the
// ids of the records holding it.
package index

import (
	"encoding/binary"
	"sync"

	"github.com/ssargent/tweetdb/pkg/bptree"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// DefaultOrder is the B+Tree order used by NewIndexManager when given less than 3
const DefaultOrder = 32

// SecondaryIndex manages a B+Tree-based index for a specific field
type SecondaryIndex struct {
	fieldName string
	tree      *bptree.BPlusTree[string, identity.PublicKey]
}

// NewSecondaryIndex creates a new secondary index for a field
func NewSecondaryIndex(fieldName string, order int) *SecondaryIndex {
	return &SecondaryIndex{
		fieldName: fieldName,
		tree:      bptree.NewBPlusTree[string, identity.PublicKey](order),
	}
}

// Field returns the indexed field name
func (idx *SecondaryIndex) Field() string {
	return idx.fieldName
}

// Insert adds id under value. Inserting the same pair twice is a no-op.
func (idx *SecondaryIndex) Insert(value []byte, id identity.PublicKey) {
	idx.tree.Insert(createIndexKey(value, id), id)
}

// Delete removes id from under value
func (idx *SecondaryIndex) Delete(value []byte, id identity.PublicKey) bool {
	return idx.tree.Delete(createIndexKey(value, id))
}

// Search returns the ids indexed under exactly value, in id order
func (idx *SecondaryIndex) Search(value []byte) []identity.PublicKey {
	prefix := createFieldPrefix(value)
	var ids []identity.PublicKey
	idx.tree.Ascend(prefix, func(key string, id identity.PublicKey) bool {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			return false
		}
		ids = append(ids, id)
		return true
	})
	return ids
}

// Len returns the number of indexed (value, id) pairs
func (idx *SecondaryIndex) Len() int {
	return idx.tree.Len()
}

// createIndexKey creates a composite key: field prefix + id, so equal
// values with different ids stay distinct
func createIndexKey(value []byte, id identity.PublicKey) string {
	return createFieldPrefix(value) + string(id[:])
}

// createFieldPrefix length-prefixes value so "ab" never prefixes "abc"
func createFieldPrefix(value []byte) string {
	buf := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(buf, uint32(len(value)))
	copy(buf[4:], value)
	return string(buf)
}

// IndexManager manages the secondary indexes of one store
type IndexManager struct {
	indexes map[string]*SecondaryIndex
	mutex   sync.RWMutex
	order   int
}

// NewIndexManager creates a new index manager
func NewIndexManager(order int) *IndexManager {
	if order < 3 {
		order = DefaultOrder
	}
	return &IndexManager{
		indexes: make(map[string]*SecondaryIndex),
		order:   order,
	}
}

// GetOrCreateIndex gets an existing index or creates a new one for a field
func (im *IndexManager) GetOrCreateIndex(fieldName string) *SecondaryIndex {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	if idx, exists := im.indexes[fieldName]; exists {
		return idx
	}

	idx := NewSecondaryIndex(fieldName, im.order)
	im.indexes[fieldName] = idx
	return idx
}

// Index returns the index for fieldName if one exists
func (im *IndexManager) Index(fieldName string) (*SecondaryIndex, bool) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	idx, ok := im.indexes[fieldName]
	return idx, ok
}
