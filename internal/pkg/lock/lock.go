// Package lock provides keyed locking for concurrent engine operations.
// The ledger serializes balance mutations per user id and the challenge
// registry serializes state-machine transitions per challenge code, both
// through the same KeyedLock primitive.
package lock

import (
	"context"
	"sync"
	"time"
)

// entry wraps a mutex with reference counting so idle entries can be
// recycled through the pool.
type entry struct {
	mu       sync.Mutex
	refCount int
}

// KeyedLock provides per-key mutual exclusion. The zero value is not usable;
// construct with NewKeyedLock.
type KeyedLock[K comparable] struct {
	locks sync.Map // map[K]*entry
	pool  sync.Pool
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock[K comparable]() *KeyedLock[K] {
	return &KeyedLock[K]{
		pool: sync.Pool{
			New: func() any {
				return &entry{}
			},
		},
	}
}

// get retrieves or creates the entry for key.
func (kl *KeyedLock[K]) get(key K) *entry {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*entry)
	}

	fresh := kl.pool.Get().(*entry)
	fresh.refCount = 0

	actual, loaded := kl.locks.LoadOrStore(key, fresh)
	if loaded {
		// Another goroutine won the race; return ours to the pool.
		kl.pool.Put(fresh)
	}
	return actual.(*entry)
}

// Lock acquires the lock for key, blocking until it is available.
func (kl *KeyedLock[K]) Lock(key K) {
	e := kl.get(key)
	e.mu.Lock()
	e.refCount++
}

// Unlock releases the lock for key.
func (kl *KeyedLock[K]) Unlock(key K) {
	if v, ok := kl.locks.Load(key); ok {
		e := v.(*entry)
		e.refCount--
		e.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (kl *KeyedLock[K]) TryLock(key K) bool {
	e := kl.get(key)
	if e.mu.TryLock() {
		e.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock within the timeout.
// Returns false if the timeout elapsed first.
func (kl *KeyedLock[K]) LockWithTimeout(ctx context.Context, key K, timeout time.Duration) bool {
	e := kl.get(key)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		e.refCount++
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the mutex; release
		// it again so the key is not held forever.
		go func() {
			<-done
			e.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the lock for key.
func (kl *KeyedLock[K]) WithLock(key K, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key, failing with
// ErrLockTimeout if the lock cannot be acquired in time.
func (kl *KeyedLock[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked reports whether key is currently held. Point-in-time check only.
func (kl *KeyedLock[K]) IsLocked(key K) bool {
	if v, ok := kl.locks.Load(key); ok {
		e := v.(*entry)
		if e.mu.TryLock() {
			e.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
