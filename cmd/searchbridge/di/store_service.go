package di

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/auth"
	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/secrets"
	"github.com/searchbridge/searchbridge/internal/store"
)

// CipherService holds the key-material cipher. Cipher is nil when no
// tavily keys are configured and nothing needs encrypting.
type CipherService struct {
	Cipher *secrets.Cipher
}

// NewCipherService builds the AES-256-GCM cipher from the encryption secret.
func NewCipherService(i do.Injector) (*CipherService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()

	if !cfg.Tavily.IsConfigured() {
		return &CipherService{}, nil
	}

	cipher, err := secrets.NewCipher([]byte(cfg.Secrets.KeyEncryptionSecret))
	if err != nil {
		return nil, fmt.Errorf("key encryption cipher: %w", err)
	}
	return &CipherService{Cipher: cipher}, nil
}

// StoreService holds the persistence backend, seeded from config.
type StoreService struct {
	Store *store.Memory
}

// NewStoreService creates the in-memory store and seeds the configured
// upstream keys (encrypted at rest) and client tokens.
func NewStoreService(i do.Injector) (*StoreService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	cipher := do.MustInvoke[*CipherService](i).Cipher

	mem := store.NewMemory()
	ctx := context.Background()
	now := time.Now()

	for idx, plaintext := range cfg.Tavily.Keys {
		ciphertext, err := cipher.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("encrypt tavily key %d: %w", idx, err)
		}
		key := keypool.Key{
			ID:         uuid.NewString(),
			Provider:   "tavily",
			Ciphertext: ciphertext,
			Status:     keypool.StatusActive,
			// Creation order breaks selection ties, so keep config order.
			CreatedAt: now.Add(time.Duration(idx) * time.Microsecond),
		}
		if err := mem.AddKey(ctx, key); err != nil {
			return nil, fmt.Errorf("seed tavily key %d: %w", idx, err)
		}
	}

	for _, token := range cfg.Tokens {
		record := auth.ClientToken{
			ID:           uuid.NewString(),
			Prefix:       token.Prefix,
			SecretHash:   token.SecretHash,
			Name:         token.Name,
			AllowedTools: token.AllowedTools,
			RateLimit:    token.RateLimit,
			CreatedAt:    now,
		}
		if err := mem.PutToken(ctx, record); err != nil {
			return nil, fmt.Errorf("seed token %s: %w", token.Name, err)
		}
	}

	log.Info().
		Int("tavily_keys", len(cfg.Tavily.Keys)).
		Int("tokens", len(cfg.Tokens)).
		Msg("store seeded")

	return &StoreService{Store: mem}, nil
}
