// Package store provides the persistence backend behind the key pool, the
// token authenticator, and the usage logger. The in-memory implementation
// serves single-node deployments and tests; every method gives the atomic
// whole-record semantics the consumers' contracts require.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/searchbridge/searchbridge/internal/auth"
	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/usage"
)

// Memory is a process-local store.
type Memory struct {
	mu     sync.RWMutex
	keys   map[string]keypool.Key
	tokens map[string]auth.ClientToken // by prefix
	usage  []usage.Row
}

var (
	_ keypool.Store   = (*Memory)(nil)
	_ auth.TokenStore = (*Memory)(nil)
	_ usage.Store     = (*Memory)(nil)
)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		keys:   make(map[string]keypool.Key),
		tokens: make(map[string]auth.ClientToken),
	}
}

// AddKey inserts or replaces an upstream key record.
func (m *Memory) AddKey(_ context.Context, key keypool.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}

// ListEligible returns up to limit eligible keys for provider ordered by
// (lastUsedAt asc, createdAt asc).
func (m *Memory) ListEligible(_ context.Context, provider string, now time.Time, limit int) ([]keypool.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eligible := lo.Filter(lo.Values(m.keys), func(k keypool.Key, _ int) bool {
		return k.Provider == provider && k.Eligible(now)
	})

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].LastUsedAt.Equal(eligible[j].LastUsedAt) {
			return eligible[i].LastUsedAt.Before(eligible[j].LastUsedAt)
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// GetKey returns the record for id.
func (m *Memory) GetKey(_ context.Context, id string) (keypool.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.keys[id]
	if !ok {
		return keypool.Key{}, keypool.ErrKeyNotFound
	}
	return key, nil
}

// UpdateKey atomically replaces the record with the same ID.
func (m *Memory) UpdateKey(_ context.Context, key keypool.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key.ID]; !ok {
		return keypool.ErrKeyNotFound
	}
	m.keys[key.ID] = key
	return nil
}

// CountKeys returns the number of stored keys for provider, every status
// included.
func (m *Memory) CountKeys(provider string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.CountBy(lo.Values(m.keys), func(k keypool.Key) bool {
		return k.Provider == provider
	})
}

// PutToken inserts or replaces a client token record.
func (m *Memory) PutToken(_ context.Context, record auth.ClientToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[record.Prefix] = record
	return nil
}

// GetTokenByPrefix returns the token record stored under prefix.
func (m *Memory) GetTokenByPrefix(_ context.Context, prefix string) (auth.ClientToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.tokens[prefix]
	if !ok {
		return auth.ClientToken{}, auth.ErrTokenNotFound
	}
	return record, nil
}

// RevokeToken stamps the record's RevokedAt. Revoking an unknown prefix is
// an error; revoking twice keeps the first timestamp.
func (m *Memory) RevokeToken(_ context.Context, prefix string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tokens[prefix]
	if !ok {
		return auth.ErrTokenNotFound
	}
	if record.RevokedAt.IsZero() {
		record.RevokedAt = at
		m.tokens[prefix] = record
	}
	return nil
}

// InsertUsage appends one usage row.
func (m *Memory) InsertUsage(_ context.Context, row usage.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, row)
	return nil
}

// DeleteUsageBefore removes rows created before cutoff.
func (m *Memory) DeleteUsageBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := lo.Filter(m.usage, func(row usage.Row, _ int) bool {
		return !row.CreatedAt.Before(cutoff)
	})
	deleted := len(m.usage) - len(kept)
	m.usage = kept
	return deleted, nil
}

// UsageRows returns a snapshot of all stored rows, newest last.
func (m *Memory) UsageRows() []usage.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]usage.Row(nil), m.usage...)
}
