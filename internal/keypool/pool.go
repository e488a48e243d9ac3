package keypool

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/searchbridge/searchbridge/internal/search"
)

// selectionWindow caps how many eligible candidates one selection considers.
const selectionWindow = 10

// preflightRetryAfter is the retry hint surfaced when a forced preflight
// refresh fails for reasons other than exhaustion.
const preflightRetryAfter = 10 * time.Second

// Selected is a decrypted key handed to the upstream caller.
type Selected struct {
	ID     string
	APIKey string
}

// Pool selects upstream keys for one provider. Selection is serialized by an
// in-process mutex so concurrent requests do not race on the same stalest
// candidate; refreshes are additionally serialized per key across the whole
// deployment by the RefreshLocker.
type Pool struct {
	store    Store
	locker   RefreshLocker
	credits  CreditsFetcher
	cipher   Decrypter
	strategy func() Strategy
	now      func() time.Time
	provider string
	cfg      Config
	mu       sync.Mutex
}

// NewPool creates a Pool for the given provider. The strategy getter is
// consulted on every selection so the admin plane can swap policies at
// runtime.
func NewPool(provider string, store Store, locker RefreshLocker, fetcher CreditsFetcher,
	cipher Decrypter, strategy func() Strategy, cfg Config,
) *Pool {
	return &Pool{
		provider: provider,
		store:    store,
		locker:   locker,
		credits:  fetcher,
		cipher:   cipher,
		strategy: strategy,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Preflight verifies that at least one eligible key has usable credits
// before a request is admitted. When no cached snapshot is both fresh and
// usable it force-refreshes the stalest candidate and judges the result.
func (p *Pool) Preflight(ctx context.Context) error {
	now := p.now()

	keys, err := p.store.ListEligible(ctx, p.provider, now, selectionWindow)
	if err != nil {
		return &PreflightError{Status: http.StatusServiceUnavailable, Message: "Key store unavailable", RetryAfter: preflightRetryAfter}
	}
	if len(keys) == 0 {
		return &PreflightError{Status: http.StatusServiceUnavailable, Message: "No keys configured"}
	}

	for i := range keys {
		if keys[i].CreditsFresh(now) && keys[i].HasUsableCredits(p.cfg.MinRemaining) {
			return nil
		}
	}

	// Stalest candidate first: keys are ordered (lastUsedAt asc, createdAt asc).
	refreshed, err := p.RefreshCredits(ctx, keys[0], true)
	if err != nil {
		if errors.Is(err, search.ErrQuotaExceeded) {
			return p.quotaExhausted()
		}
		return &PreflightError{Status: http.StatusServiceUnavailable, Message: "Credit check failed", RetryAfter: preflightRetryAfter}
	}

	if remaining, ok := refreshed.Credits.Remaining.Get(); ok && remaining <= p.cfg.MinRemaining {
		return p.quotaExhausted()
	}
	return nil
}

func (p *Pool) quotaExhausted() *PreflightError {
	return &PreflightError{
		Status:     http.StatusTooManyRequests,
		Message:    "Upstream quota exhausted",
		RetryAfter: p.cfg.Cooldown,
	}
}

// Select picks an eligible key with usable credits, stamps its lastUsedAt,
// and returns the decrypted key material. Returns ErrNoEligibleKeys when no
// candidate yields a usable key.
func (p *Pool) Select(ctx context.Context) (Selected, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	keys, err := p.store.ListEligible(ctx, p.provider, now, selectionWindow)
	if err != nil {
		return Selected{}, err
	}
	if len(keys) == 0 {
		return Selected{}, ErrNoEligibleKeys
	}

	for _, candidate := range p.strategy().Order(keys) {
		selected, ok := p.trySelect(ctx, candidate, now)
		if ok {
			return selected, nil
		}
	}

	return Selected{}, ErrNoEligibleKeys
}

// trySelect refreshes one candidate's credits and claims it when usable.
func (p *Pool) trySelect(ctx context.Context, candidate Key, now time.Time) (Selected, bool) {
	key, err := p.RefreshCredits(ctx, candidate, false)
	if err != nil {
		log.Debug().
			Str("provider", p.provider).
			Str("key_id", candidate.ID).
			Err(err).
			Msg("candidate refresh failed, trying next")
		return Selected{}, false
	}

	if remaining, ok := key.Credits.Remaining.Get(); ok && remaining <= p.cfg.MinRemaining {
		p.applyCooldown(ctx, key, now)
		return Selected{}, false
	}

	key.LastUsedAt = now
	if key.Status == StatusCooldown && !key.CooldownUntil.After(now) {
		key.Status = StatusActive
		key.CooldownUntil = time.Time{}
	}
	if err := p.store.UpdateKey(ctx, key); err != nil {
		log.Warn().Str("key_id", key.ID).Err(err).Msg("failed to stamp key usage")
		return Selected{}, false
	}

	apiKey, err := p.cipher.Decrypt(key.Ciphertext)
	if err != nil {
		log.Error().Str("key_id", key.ID).Err(err).Msg("failed to decrypt key material")
		return Selected{}, false
	}

	log.Debug().
		Str("provider", p.provider).
		Str("key_id", key.ID).
		Str("strategy", p.strategy().Name()).
		Msg("selected upstream key")
	return Selected{ID: key.ID, APIKey: apiKey}, true
}

func (p *Pool) applyCooldown(ctx context.Context, key Key, now time.Time) {
	key.Status = StatusCooldown
	key.CooldownUntil = now.Add(p.cfg.Cooldown)
	if err := p.store.UpdateKey(ctx, key); err != nil {
		log.Warn().Str("key_id", key.ID).Err(err).Msg("failed to persist cooldown")
	}
}

// RefreshCredits ensures the key's credit snapshot is current. With
// force=false a fresh cached snapshot short-circuits the fetch. The remote
// fetch runs under the per-key refresh lock; on lock-miss the stale-grace
// rule applies: a recently checked, usable snapshot is trusted, anything
// else fails with ErrRefreshLocked.
func (p *Pool) RefreshCredits(ctx context.Context, key Key, force bool) (Key, error) {
	now := p.now()

	if !force && key.CreditsFresh(now) {
		return key, nil
	}

	token, held, err := p.locker.TryAcquire(ctx, key.ID, p.cfg.RefreshLockTTL)
	if err != nil || !held {
		if p.withinStaleGrace(key, now) {
			log.Debug().Str("key_id", key.ID).Msg("refresh lock busy, trusting stale snapshot")
			return key, nil
		}
		return Key{}, ErrRefreshLocked
	}
	defer func() {
		// Lock-release failures are advisory only.
		if err := p.locker.Release(ctx, key.ID, token); err != nil {
			log.Debug().Str("key_id", key.ID).Err(err).Msg("refresh lock release failed")
		}
	}()

	return p.refreshLocked(ctx, key, now)
}

// withinStaleGrace applies the bounded trust window for expired snapshots.
func (p *Pool) withinStaleGrace(key Key, now time.Time) bool {
	if key.CreditsCheckedAt.IsZero() {
		return false
	}
	if now.Sub(key.CreditsCheckedAt) > p.cfg.StaleGrace {
		return false
	}
	return key.HasUsableCredits(p.cfg.MinRemaining)
}

// refreshLocked performs the remote fetch and persists the outcome.
// Caller holds the per-key refresh lock.
func (p *Pool) refreshLocked(ctx context.Context, key Key, now time.Time) (Key, error) {
	apiKey, err := p.cipher.Decrypt(key.Ciphertext)
	if err != nil {
		return Key{}, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchBudget())
	defer cancel()

	snap, err := p.credits.Fetch(fetchCtx, apiKey)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrInvalidKey):
			key.Status = StatusInvalid
			p.persistMark(ctx, key, "invalid")
		case errors.Is(err, search.ErrQuotaExceeded):
			key.Status = StatusCooldown
			key.CooldownUntil = now.Add(p.cfg.Cooldown)
			p.persistMark(ctx, key, "cooldown")
		}
		return Key{}, err
	}

	key.Credits = snap
	key.CreditsCheckedAt = now
	key.CreditsExpiresAt = now.Add(maxDuration(time.Millisecond, p.cfg.TTL))

	if remaining, ok := snap.Remaining.Get(); ok && remaining <= p.cfg.MinRemaining {
		key.Status = StatusCooldown
		key.CooldownUntil = now.Add(p.cfg.Cooldown)
	} else if key.Status == StatusCooldown && !key.CooldownUntil.After(now) {
		key.Status = StatusActive
		key.CooldownUntil = time.Time{}
	}

	if err := p.store.UpdateKey(ctx, key); err != nil {
		return Key{}, err
	}

	log.Debug().
		Str("provider", p.provider).
		Str("key_id", key.ID).
		Int("remaining", snap.Remaining.OrElse(-1)).
		Msg("refreshed key credits")
	return key, nil
}

// fetchBudget bounds the whole fetch including retries:
// maxRetries x (timeout + retryDelay).
func (p *Pool) fetchBudget() time.Duration {
	attempts := time.Duration(p.cfg.RefreshMaxRetries)
	if attempts < 1 {
		attempts = 1
	}
	return attempts * (p.cfg.RefreshTimeout + p.cfg.RefreshRetryDelay)
}

func (p *Pool) persistMark(ctx context.Context, key Key, state string) {
	if err := p.store.UpdateKey(ctx, key); err != nil {
		log.Warn().Str("key_id", key.ID).Str("state", state).Err(err).Msg("failed to persist key state")
	}
}

// MarkCooldown excludes the key from selection until the given instant.
func (p *Pool) MarkCooldown(ctx context.Context, id string, until time.Time) error {
	key, err := p.store.GetKey(ctx, id)
	if err != nil {
		return err
	}
	key.Status = StatusCooldown
	key.CooldownUntil = until
	return p.store.UpdateKey(ctx, key)
}

// MarkInvalid terminally removes the key from selection.
func (p *Pool) MarkInvalid(ctx context.Context, id string) error {
	key, err := p.store.GetKey(ctx, id)
	if err != nil {
		return err
	}
	key.Status = StatusInvalid
	key.CooldownUntil = time.Time{}
	return p.store.UpdateKey(ctx, key)
}

// MarkActiveIfCooldownExpired re-activates a key whose cooldown has lapsed.
// Idempotent: active and invalid keys are left untouched.
func (p *Pool) MarkActiveIfCooldownExpired(ctx context.Context, id string) error {
	key, err := p.store.GetKey(ctx, id)
	if err != nil {
		return err
	}
	if key.Status != StatusCooldown || key.CooldownUntil.After(p.now()) {
		return nil
	}
	key.Status = StatusActive
	key.CooldownUntil = time.Time{}
	return p.store.UpdateKey(ctx, key)
}

// Provider returns the provider tag this pool serves.
func (p *Pool) Provider() string {
	return p.provider
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
