// Package auth implements client-token authentication for the bridge: the
// mcp_<prefix>.<secret> token format, hashed storage, and the request-path
// authenticator with its lookup cache.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenScheme is the literal prefix every client token starts with.
const TokenScheme = "mcp_"

const (
	prefixBytes = 6
	secretBytes = 24
)

// ClientToken is a stored token record. The secret never persists; only its
// SHA-256 hash does.
type ClientToken struct {
	ID         string
	Prefix     string
	SecretHash string // hex(sha256(secret))
	Name       string

	// AllowedTools is an opaque policy blob carried with the token for
	// external tooling. The bridge stores it verbatim and never parses it.
	AllowedTools string

	// RateLimit is an advisory per-token requests-per-minute figure. It is
	// recorded for operators; the bridge does not enforce it.
	RateLimit int

	CreatedAt time.Time
	ExpiresAt time.Time // zero = never expires
	RevokedAt time.Time // zero = not revoked
}

// Revoked reports whether the token has been revoked.
func (t *ClientToken) Revoked() bool {
	return !t.RevokedAt.IsZero()
}

// Expired reports whether the token is past its expiry.
func (t *ClientToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !t.ExpiresAt.After(now)
}

// Split breaks a raw bearer token into prefix and secret at the first dot.
// The prefix keeps its mcp_ scheme so lookups match stored records.
func Split(raw string) (prefix, secret string, ok bool) {
	if !strings.HasPrefix(raw, TokenScheme) {
		return "", "", false
	}
	prefix, secret, ok = strings.Cut(raw, ".")
	if !ok || prefix == TokenScheme || secret == "" {
		return "", "", false
	}
	return prefix, secret, true
}

// HashSecret returns the hex SHA-256 of a token secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Generate mints a new client token. The full token is returned once; only
// the record (with the hashed secret) is meant to be stored.
func Generate(name string, expiresAt time.Time) (token string, record ClientToken, err error) {
	prefix, err := randomHex(prefixBytes)
	if err != nil {
		return "", ClientToken{}, err
	}
	secret, err := randomHex(secretBytes)
	if err != nil {
		return "", ClientToken{}, err
	}

	record = ClientToken{
		ID:         uuid.NewString(),
		Prefix:     TokenScheme + prefix,
		SecretHash: HashSecret(secret),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}
	return record.Prefix + "." + secret, record, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
