// Package lock serialises work on an unordered pair of users.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"connect-go/internal/models"
)

// ErrLockTimeout is returned when a pair lock could not be acquired before the
// caller's context or the locker's wait timeout expired.
var ErrLockTimeout = errors.New("timed out waiting for pair lock")

// PairLocker grants mutual exclusion for the unordered pair {a, b}: Lock(a, b)
// and Lock(b, a) contend for the same lock.
type PairLocker interface {
	Lock(ctx context.Context, a, b uint) (unlock func(), err error)
}

// PairKey is the canonical key for {a, b}, shared by every PairLocker.
func PairKey(a, b uint) string {
	low, high := models.CanonicalPair(a, b)
	return fmt.Sprintf("%d:%d", low, high)
}

type pairEntry struct {
	sem  chan struct{}
	refs int
}

// LocalPairLocker is an in-process PairLocker. Entries are reference counted
// and dropped once nobody holds or waits for them.
type LocalPairLocker struct {
	mu          sync.Mutex
	entries     map[string]*pairEntry
	waitTimeout time.Duration
}

// NewLocalPairLocker creates an empty LocalPairLocker. A positive waitTimeout
// bounds how long Lock waits; zero waits as long as the caller's context.
func NewLocalPairLocker(waitTimeout time.Duration) *LocalPairLocker {
	return &LocalPairLocker{
		entries:     make(map[string]*pairEntry),
		waitTimeout: waitTimeout,
	}
}

// Lock blocks until the pair is free, ctx is done, or the wait timeout elapses.
func (l *LocalPairLocker) Lock(ctx context.Context, a, b uint) (func(), error) {
	key := PairKey(a, b)

	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &pairEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("%w %s: %w", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *LocalPairLocker) release(key string, e *pairEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size is the number of live entries; used by tests to check cleanup.
func (l *LocalPairLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
