// Package lock provides the per-key refresh lock: a TTL-bounded advisory
// try-lock with an in-memory backend for single-node deployments and an
// Olric-backed one for HA.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker is a TTL-bounded advisory try-lock. Locks are fenced by an opaque
// token so a holder cannot release a lock that expired and was re-acquired
// by someone else.
type Locker interface {
	// TryAcquire attempts to take the named lock. ok is false when another
	// holder has it. The lock expires on its own after ttl.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)

	// Release releases the named lock if token still holds it.
	Release(ctx context.Context, name, token string) error
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker is a process-local Locker for single-node deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// TryAcquire takes the lock unless a live holder exists. Expired entries are
// reclaimed in place.
func (m *MemoryLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.locks[name]; ok && entry.expires.After(now) {
		return "", false, nil
	}

	token := uuid.NewString()
	m.locks[name] = memoryEntry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release drops the lock when token still holds it. Releasing a lock held by
// someone else, or not held at all, is a no-op.
func (m *MemoryLocker) Release(ctx context.Context, name, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.locks[name]; ok && entry.token == token {
		delete(m.locks, name)
	}
	return nil
}
