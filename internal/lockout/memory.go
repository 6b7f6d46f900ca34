package lockout

import (
	"context"
	"sync"
	"time"
)

// memoryState tracks one key's failure streak.
type memoryState struct {
	failures    int64
	windowEnds  time.Time
	lockedUntil time.Time
}

// MemoryLimiter keeps failure counters in process memory.
type MemoryLimiter struct {
	mu    sync.Mutex
	items map[string]*memoryState
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{items: make(map[string]*memoryState)}
}

// Locked reports whether key is currently locked out.
func (l *MemoryLimiter) Locked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.items[key]
	if !ok {
		return false, nil
	}
	now := time.Now()
	if now.After(state.windowEnds) && now.After(state.lockedUntil) {
		delete(l.items, key)
		return false, nil
	}
	return now.Before(state.lockedUntil), nil
}

// Fail records a failed attempt and returns whether key is now locked.
func (l *MemoryLimiter) Fail(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	state, ok := l.items[key]
	if !ok || now.After(state.windowEnds) {
		state = &memoryState{}
		l.items[key] = state
	}
	state.failures++
	state.windowEnds = now.Add(failureWindow)
	if state.failures >= Threshold {
		state.lockedUntil = now.Add(durationFor(state.failures))
		return true, nil
	}
	return false, nil
}

// Reset clears the failure streak for key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, key)
	return nil
}
