package lock

import (
	"context"
	"sync"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// MemoryLocker is a single-process TTL lock.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]domain.DistributedLock
	now   func() time.Time
}

var _ ports.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker builds a locker using the wall clock.
func NewMemoryLocker() *MemoryLocker {
	return NewMemoryLockerWithClock(time.Now)
}

// NewMemoryLockerWithClock builds a locker with an injectable clock.
func NewMemoryLockerWithClock(now func() time.Time) *MemoryLocker {
	return &MemoryLocker{locks: map[string]domain.DistributedLock{}, now: now}
}

// Acquire succeeds when the key is free or its lease has expired.
func (m *MemoryLocker) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.locks[key]; ok && !held.Expired(now) {
		return false, nil
	}
	m.locks[key] = domain.DistributedLock{Key: key, HolderToken: token, AcquiredAt: now, TTL: ttl}
	return true, nil
}

// Release drops the lease if token holds it.
func (m *MemoryLocker) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.locks[key]; ok && held.HolderToken == token {
		delete(m.locks, key)
	}
	return nil
}

// Holder returns the current lease, if any and unexpired.
func (m *MemoryLocker) Holder(key string) (domain.DistributedLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.locks[key]
	if !ok || held.Expired(m.now()) {
		return domain.DistributedLock{}, false
	}
	return held, true
}
