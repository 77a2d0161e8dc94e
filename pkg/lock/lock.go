// Package lock serializes writes for a single key across concurrent
// handlers. The billing core uses it to keep the read-decide-write window
// for one subscription id from interleaving; correctness does not depend on
// it (conditional updates catch lost races), it just avoids wasted retries.
package lock

import (
	"context"
	"sync"
)

// ReleaseFunc releases a held lock. Safe to call exactly once.
type ReleaseFunc func()

// Locker acquires an exclusive lock for a key, blocking until the lock is
// available or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// KeyedMutex is an in-process Locker backed by per-key channels. Suitable
// for single-instance deployments and tests; use the Redis locker when
// several instances share a database.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]chan struct{})}
}

func (m *KeyedMutex) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	for {
		m.mu.Lock()
		ch, held := m.locks[key]
		if !held {
			m.locks[key] = make(chan struct{})
			m.mu.Unlock()
			return func() {
				m.mu.Lock()
				ch := m.locks[key]
				delete(m.locks, key)
				m.mu.Unlock()
				close(ch)
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-ch: // holder released, race for it again
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
