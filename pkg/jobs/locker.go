package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local Locker used when redis is disabled.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryLocker constructs an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]time.Time), now: time.Now}
}

// Acquire takes key unless it is held and not yet expired.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expires, ok := l.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.keys[key] = now.Add(ttl)
	return true, nil
}

// Release frees key.
func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}
