package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// Authentication failures. All of them map to HTTP 401; the distinction is
// for logs only and never reaches the client verbatim.
var (
	ErrMissingToken   = errors.New("auth: missing bearer token")
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrUnknownToken   = errors.New("auth: unknown token")
	ErrTokenRevoked   = errors.New("auth: token revoked")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrBadSecret      = errors.New("auth: secret mismatch")
)

// TokenStore looks up stored token records by prefix.
type TokenStore interface {
	GetTokenByPrefix(ctx context.Context, prefix string) (ClientToken, error)
}

// ErrTokenNotFound is what TokenStore implementations return for an unknown
// prefix.
var ErrTokenNotFound = errors.New("auth: token not found")

const (
	cacheNumCounters = 10_000
	cacheMaxCost     = 1_000
	cacheBufferItems = 64

	defaultCacheTTL = 30 * time.Second
)

// Authenticator validates bearer tokens on the request path. Records are
// cached briefly so a chatty MCP client does not hammer the store; the TTL
// bounds how long a revocation takes to propagate.
type Authenticator struct {
	store TokenStore
	cache *ristretto.Cache[string, ClientToken]
	ttl   time.Duration
	now   func() time.Time
}

// NewAuthenticator creates an Authenticator. cacheTTL <= 0 selects the 30s
// default.
func NewAuthenticator(store TokenStore, cacheTTL time.Duration) (*Authenticator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, ClientToken]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Authenticator{
		store: store,
		cache: cache,
		ttl:   cacheTTL,
		now:   time.Now,
	}, nil
}

// Authenticate validates an Authorization header value and returns the
// matching record. The secret comparison is constant-time.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (ClientToken, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return ClientToken{}, ErrMissingToken
	}

	return a.AuthenticateToken(ctx, strings.TrimSpace(raw))
}

// AuthenticateToken validates a raw client token (no Bearer prefix), the
// form the stdio transport receives on the command line.
func (a *Authenticator) AuthenticateToken(ctx context.Context, raw string) (ClientToken, error) {
	prefix, secret, ok := Split(raw)
	if !ok {
		return ClientToken{}, ErrMalformedToken
	}

	record, err := a.lookup(ctx, prefix)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ClientToken{}, ErrUnknownToken
		}
		return ClientToken{}, fmt.Errorf("auth: token lookup: %w", err)
	}

	if record.Revoked() {
		return ClientToken{}, ErrTokenRevoked
	}
	if record.Expired(a.now()) {
		return ClientToken{}, ErrTokenExpired
	}

	if !secretMatches(secret, record.SecretHash) {
		zerolog.Ctx(ctx).Warn().Str("token_prefix", prefix).Msg("token secret mismatch")
		return ClientToken{}, ErrBadSecret
	}

	return record, nil
}

// Invalidate drops a prefix from the lookup cache, used when a token is
// revoked through the admin surface.
func (a *Authenticator) Invalidate(prefix string) {
	a.cache.Del(prefix)
}

func (a *Authenticator) lookup(ctx context.Context, prefix string) (ClientToken, error) {
	if record, ok := a.cache.Get(prefix); ok {
		return record, nil
	}

	record, err := a.store.GetTokenByPrefix(ctx, prefix)
	if err != nil {
		return ClientToken{}, err
	}

	a.cache.SetWithTTL(prefix, record, 1, a.ttl)
	return record, nil
}

// secretMatches compares sha256(secret) against the stored hash without
// early exit on the first differing byte.
func secretMatches(secret, storedHexHash string) bool {
	sum := sha256.Sum256([]byte(secret))
	stored := []byte(storedHexHash)
	computed := []byte(hex.EncodeToString(sum[:]))
	if len(stored) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare(computed, stored) == 1
}
