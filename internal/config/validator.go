package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Validation errors.
var (
	ErrEncryptionSecretMissing = errors.New("config: key_encryption_secret is required when tavily keys are configured")
	ErrTokenPrefixInvalid      = errors.New("config: token prefix must start with mcp_")
	ErrTokenHashInvalid        = errors.New("config: token secret_hash must be a hex SHA-256 digest")
)

// EncryptionSecretLengthError is returned when the AES key has the wrong size.
type EncryptionSecretLengthError struct {
	Length int
}

func (e EncryptionSecretLengthError) Error() string {
	return fmt.Sprintf("config: key_encryption_secret must be 32 bytes, got %d", e.Length)
}

// UnknownStrategyError is returned for an unrecognized key selection strategy.
type UnknownStrategyError struct {
	Strategy string
}

func (e UnknownStrategyError) Error() string {
	return fmt.Sprintf("config: unknown key selection strategy %q", e.Strategy)
}

// Validate checks cfg for configuration errors. Settings with documented
// fallbacks (source mode, overflow, log mode, sample rate) are not errors;
// only settings that would silently break at runtime reject the config.
func Validate(cfg *Config) error {
	if cfg.Tavily.IsConfigured() {
		secret := cfg.Secrets.KeyEncryptionSecret
		if secret == "" {
			return ErrEncryptionSecretMissing
		}
		if len(secret) != 32 {
			return EncryptionSecretLengthError{Length: len(secret)}
		}
	}

	switch cfg.Tavily.SelectionStrategy {
	case "", "round_robin", "random", "most_credits":
	default:
		return UnknownStrategyError{Strategy: cfg.Tavily.SelectionStrategy}
	}

	for i, token := range cfg.Tokens {
		if err := validateToken(token); err != nil {
			return fmt.Errorf("config: tokens[%d] (%s): %w", i, token.Name, err)
		}
	}
	return nil
}

func validateToken(token TokenConfig) error {
	if !strings.HasPrefix(token.Prefix, "mcp_") {
		return ErrTokenPrefixInvalid
	}
	if len(token.SecretHash) != hex.EncodedLen(32) {
		return ErrTokenHashInvalid
	}
	if _, err := hex.DecodeString(token.SecretHash); err != nil {
		return ErrTokenHashInvalid
	}
	return nil
}
