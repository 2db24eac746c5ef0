// Package locker serializes mutating work per account. The registry hands
// out one lock per account identifier for the life of the process; account
// cardinality is bounded by the player population, so entries are never
// evicted.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout means another operation for the same account is in flight.
// It is retryable: nothing was mutated and the caller should report
// "try again" rather than queue behind the holder.
var ErrTimeout = errors.New("locker: timed out waiting for account lock")

// AccountLock is an exclusive lock with bounded-wait acquisition.
type AccountLock struct {
	ch chan struct{}
}

func newAccountLock() *AccountLock {
	return &AccountLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free, the timeout elapses, or ctx is
// done. No fairness is guaranteed between concurrent waiters.
func (l *AccountLock) Acquire(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock only if it is immediately free.
func (l *AccountLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Callers must release on every exit path,
// including business rejections and errors.
func (l *AccountLock) Release() {
	select {
	case <-l.ch:
	default:
		panic("locker: release of unheld account lock")
	}
}

// Registry maps account identifiers to their locks, construct-or-fetch.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*AccountLock
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*AccountLock)}
}

// Get returns the lock for accountID, creating it on first access. Every
// call with the same identifier returns the same lock.
func (r *Registry) Get(accountID string) *AccountLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[accountID]; ok {
		return l
	}
	l := newAccountLock()
	r.locks[accountID] = l
	return l
}

// Len reports how many account locks exist, for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
