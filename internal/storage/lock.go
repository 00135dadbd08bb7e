package storage

import "sync"

// WriteLock is the single mutual-exclusion primitive guarding all
// mutations of one storage instance. The zero value is ready to use.
//
// It is a plain mutex plus a held flag so that IsLocked can probe the
// state without blocking.
type WriteLock struct {
	mu sync.Mutex

	stateMu sync.Mutex
	held    bool
}

func (l *WriteLock) Acquire() {
	l.mu.Lock()
	l.stateMu.Lock()
	l.held = true
	l.stateMu.Unlock()
}

func (l *WriteLock) Release() {
	l.stateMu.Lock()
	l.held = false
	l.stateMu.Unlock()
	l.mu.Unlock()
}

func (l *WriteLock) IsLocked() bool {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.held
}
