package ledger

import (
	"context"
	"sync"

	"github.com/ssargent/tweetdb/pkg/identity"
)

// keyLocks hands out one mutex per record id, created on demand and dropped
// when no one holds or waits for it
type keyLocks struct {
	mu    sync.Mutex
	locks map[identity.PublicKey]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[identity.PublicKey]*keyLock)}
}

// acquire blocks until the lock for id is held or ctx is done. The returned
// func releases it.
func (k *keyLocks) acquire(ctx context.Context, id identity.PublicKey) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.unref(id, l)
		}, nil
	case <-ctx.Done():
		k.unref(id, l)
		return nil, ctx.Err()
	}
}

func (k *keyLocks) unref(id identity.PublicKey, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
