// Package bptree is an in-memory B+Tree with ordered range scans over
// linked leaves.
package bptree

import (
	"cmp"
	"sync"
)

// DefaultOrder is the fallback branching factor if a user-supplied order is too small.
const DefaultOrder = 4

// BPlusTree maps ordered keys to values. It is safe for concurrent use;
// writers hold the tree lock exclusively, readers share it.
type BPlusTree[K cmp.Ordered, V any] struct {
	root   *node[K, V]
	order  int
	height int
	size   int
	m      sync.RWMutex
}

// node is an internal node when isLeaf is false
type node[K cmp.Ordered, V any] struct {
	isLeaf   bool
	keys     []K
	children []*node[K, V] // used if !isLeaf
	values   []V           // used if isLeaf
	parent   *node[K, V]
	next     *node[K, V] // leaf-link pointer, for range scans
}

// NewBPlusTree creates and returns a B+Tree with the given order.
// If the specified order < 3, we fall back to DefaultOrder.
func NewBPlusTree[K cmp.Ordered, V any](order int) *BPlusTree[K, V] {
	if order < 3 {
		order = DefaultOrder
	}
	return &BPlusTree[K, V]{
		root:   &node[K, V]{isLeaf: true},
		order:  order,
		height: 1,
	}
}

// Height returns the number of levels
func (tree *BPlusTree[K, V]) Height() int {
	tree.m.RLock()
	defer tree.m.RUnlock()
	return tree.height
}

// Len returns the number of keys
func (tree *BPlusTree[K, V]) Len() int {
	tree.m.RLock()
	defer tree.m.RUnlock()
	return tree.size
}

// Search returns the value stored under key
func (tree *BPlusTree[K, V]) Search(key K) (V, bool) {
	tree.m.RLock()
	defer tree.m.RUnlock()

	leaf := tree.findLeaf(key)
	if i, ok := leafIndex(leaf, key); ok {
		return leaf.values[i], true
	}
	var zero V
	return zero, false
}

// Insert stores value under key, replacing any existing value
func (tree *BPlusTree[K, V]) Insert(key K, value V) {
	tree.m.Lock()
	defer tree.m.Unlock()

	leaf := tree.findLeaf(key)
	if tree.insertKeyValueInLeaf(leaf, key, value) && len(leaf.keys) > tree.order {
		tree.splitLeaf(leaf)
	}
}

// Delete removes key and reports whether it was present. Leaves are not
// merged, so a tree that shrinks keeps its height.
func (tree *BPlusTree[K, V]) Delete(key K) bool {
	tree.m.Lock()
	defer tree.m.Unlock()

	leaf := tree.findLeaf(key)
	i, ok := leafIndex(leaf, key)
	if !ok {
		return false
	}
	leaf.keys = append(leaf.keys[:i], leaf.keys[i+1:]...)
	leaf.values = append(leaf.values[:i], leaf.values[i+1:]...)
	tree.size--
	return true
}

// Ascend calls fn for each key >= from in order until fn returns false.
// fn must not modify the tree.
func (tree *BPlusTree[K, V]) Ascend(from K, fn func(key K, value V) bool) {
	tree.m.RLock()
	defer tree.m.RUnlock()

	leaf := tree.findLeaf(from)
	i, _ := leafIndex(leaf, from)
	for leaf != nil {
		for ; i < len(leaf.keys); i++ {
			if !fn(leaf.keys[i], leaf.values[i]) {
				return
			}
		}
		leaf = leaf.next
		i = 0
	}
}

func (tree *BPlusTree[K, V]) findLeaf(key K) *node[K, V] {
	current := tree.root
	for !current.isLeaf {
		current = current.children[findChildIndex(current.keys, key)]
	}
	return current
}

// findChildIndex determines which child pointer to follow in an internal
// node; keys equal to a separator live in its right subtree.
func findChildIndex[K cmp.Ordered](keys []K, searchKey K) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Less(searchKey, keys[mid]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// leafIndex returns the position of the first key >= key and whether it
// equals key
func leafIndex[K cmp.Ordered, V any](leaf *node[K, V], key K) (int, bool) {
	lo, hi := 0, len(leaf.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Less(leaf.keys[mid], key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(leaf.keys) && leaf.keys[lo] == key
}

// insertKeyValueInLeaf reports whether a new key was added
func (tree *BPlusTree[K, V]) insertKeyValueInLeaf(leaf *node[K, V], key K, value V) bool {
	idx, found := leafIndex(leaf, key)
	if found {
		leaf.values[idx] = value
		return false
	}

	leaf.keys = append(leaf.keys, key)
	copy(leaf.keys[idx+1:], leaf.keys[idx:])
	leaf.keys[idx] = key

	leaf.values = append(leaf.values, value)
	copy(leaf.values[idx+1:], leaf.values[idx:])
	leaf.values[idx] = value

	tree.size++
	return true
}

func (tree *BPlusTree[K, V]) splitLeaf(leaf *node[K, V]) {
	mid := len(leaf.keys) / 2

	newLeaf := &node[K, V]{
		isLeaf: true,
		keys:   append([]K{}, leaf.keys[mid:]...),
		values: append([]V{}, leaf.values[mid:]...),
		next:   leaf.next,
		parent: leaf.parent,
	}

	leaf.keys = leaf.keys[:mid:mid]
	leaf.values = leaf.values[:mid:mid]
	leaf.next = newLeaf

	tree.insertKeyInParent(leaf, newLeaf.keys[0], newLeaf)
}

// insertKeyInParent links right after left under separator key, growing a
// new root when left has no parent
func (tree *BPlusTree[K, V]) insertKeyInParent(left *node[K, V], key K, right *node[K, V]) {
	parent := left.parent
	if parent == nil {
		root := &node[K, V]{
			keys:     []K{key},
			children: []*node[K, V]{left, right},
		}
		left.parent = root
		right.parent = root
		tree.root = root
		tree.height++
		return
	}

	idx := findChildIndex(parent.keys, key)

	parent.keys = append(parent.keys, key)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = key

	parent.children = append(parent.children, nil)
	copy(parent.children[idx+2:], parent.children[idx+1:])
	parent.children[idx+1] = right
	right.parent = parent

	if len(parent.keys) > tree.order {
		tree.splitInternalNode(parent)
	}
}

func (tree *BPlusTree[K, V]) splitInternalNode(internal *node[K, V]) {
	mid := len(internal.keys) / 2
	splitKey := internal.keys[mid]

	newInternal := &node[K, V]{
		keys:     append([]K{}, internal.keys[mid+1:]...),
		children: append([]*node[K, V]{}, internal.children[mid+1:]...),
		parent:   internal.parent,
	}
	for _, child := range newInternal.children {
		child.parent = newInternal
	}

	internal.keys = internal.keys[:mid:mid]
	internal.children = internal.children[: mid+1 : mid+1]

	tree.insertKeyInParent(internal, splitKey, newInternal)
}
