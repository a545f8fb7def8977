package store

import (
	"context"
	"sync"
	"time"

	"github.com/efreitasn/brokerage/internal/domain"
)

// keyLocks hands out exclusive locks by key with a bounded wait.
// Entries are reference counted and dropped once nobody holds or waits
// for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	token chan struct{}
	refs  int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// acquire blocks until the key is free, ctx is done, or timeout elapses.
// It returns domain.ErrLockTimeout on timeout and ctx.Err() on cancellation.
func (l *keyLocks) acquire(ctx context.Context, key string, timeout time.Duration) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{token: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case kl.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, kl)
		return ctx.Err()
	case <-timer.C:
		l.unref(key, kl)
		return domain.ErrLockTimeout
	}
}

// release frees a key previously obtained with acquire.
func (l *keyLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		return
	}
	<-kl.token
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *keyLocks) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size returns the number of keys currently tracked.
func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
