// Package lock provides keyed mutual exclusion for manufacturing order mutations.
//
// LocalLocker serializes callers inside one process. RedisLocker extends the
// same guarantee across replicas with a SET NX lease and a token checked on release.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when the lock could not be acquired before the wait deadline.
var ErrLockTimeout = errors.New("lock: wait timeout")

// Locker acquires a named lock. The returned function releases it and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// OrderKey is the lock key for a manufacturing order.
func OrderKey(moID string) string {
	return "mo:" + moID
}

type entry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no caller holds or waits on them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Len reports how many keys are currently tracked.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
