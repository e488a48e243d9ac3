package keypool

import (
	"context"
	"time"

	"github.com/searchbridge/searchbridge/internal/credits"
)

// Store is the persistence contract the pool depends on. Implementations
// must provide atomic whole-record updates by ID and the eligibility-ordered
// read the selector builds on.
type Store interface {
	// ListEligible returns up to limit eligible keys for provider, ordered
	// by (lastUsedAt asc, createdAt asc) so the stalest key comes first.
	ListEligible(ctx context.Context, provider string, now time.Time, limit int) ([]Key, error)

	// GetKey returns the current record for id, or ErrKeyNotFound.
	GetKey(ctx context.Context, id string) (Key, error)

	// UpdateKey atomically replaces the record with the same ID.
	UpdateKey(ctx context.Context, key Key) error
}

// RefreshLocker serializes credit refreshes per key across the deployment.
// The lock is best-effort advisory: callers must tolerate lock-miss and
// fall back to the stale-grace rule.
type RefreshLocker interface {
	// TryAcquire attempts to take the refresh lock for keyID with the given
	// TTL. ok is false when another holder has it.
	TryAcquire(ctx context.Context, keyID string, ttl time.Duration) (token string, ok bool, err error)

	// Release releases a held lock. Failures are advisory and swallowed by
	// callers.
	Release(ctx context.Context, keyID, token string) error
}

// CreditsFetcher fetches the remote credit snapshot for a decrypted key.
type CreditsFetcher interface {
	Fetch(ctx context.Context, apiKey string) (credits.Snapshot, error)
}

// Decrypter opens encrypted key material.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}
