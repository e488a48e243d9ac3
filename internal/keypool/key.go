// Package keypool owns upstream key selection: credit-aware rotation over
// many API keys per provider, with cooldowns, invalidation, and coordinated
// credit refreshes under a distributed per-key lock.
package keypool

import (
	"time"

	"github.com/searchbridge/searchbridge/internal/credits"
)

// Status is the lifecycle state of an upstream key.
type Status string

// Key statuses. Invalid is terminal unless externally reset.
const (
	StatusActive   Status = "active"
	StatusCooldown Status = "cooldown"
	StatusInvalid  Status = "invalid"
)

// Key is one registered upstream API key. Key material is stored encrypted
// and only decrypted at selection time. Records are value types; the store
// owns the authoritative copy and updates replace the whole record by ID.
type Key struct {
	ID         string
	Provider   string
	Ciphertext string

	Status        Status
	CooldownUntil time.Time // zero = no cooldown
	LastUsedAt    time.Time
	CreatedAt     time.Time

	// Credits is the last cached snapshot. Credits.Remaining is None until
	// the first successful refresh, or when the provider reports no limit.
	Credits          credits.Snapshot
	CreditsCheckedAt time.Time // zero = never checked
	CreditsExpiresAt time.Time // snapshot TTL boundary
}

// Eligible reports whether the key may be offered to the selector:
// active, or in a cooldown that has already lapsed.
func (k *Key) Eligible(now time.Time) bool {
	switch k.Status {
	case StatusActive, StatusCooldown:
		return k.CooldownUntil.IsZero() || !k.CooldownUntil.After(now)
	default:
		return false
	}
}

// CreditsFresh reports whether the cached snapshot is still inside its TTL.
// A snapshot with no reported limit counts as fresh until the TTL lapses so
// unlimited keys do not trigger a remote fetch on every selection.
func (k *Key) CreditsFresh(now time.Time) bool {
	return !k.CreditsCheckedAt.IsZero() && k.CreditsExpiresAt.After(now)
}

// HasUsableCredits reports whether the cached remaining count clears the
// configured floor. None (no reported limit) counts as usable.
func (k *Key) HasUsableCredits(minRemaining int) bool {
	remaining, ok := k.Credits.Remaining.Get()
	return !ok || remaining > minRemaining
}
