// Package secrets provides AES-256-GCM encryption for stored key material.
//
// Upstream API keys are kept encrypted at rest and only decrypted at the
// moment a request needs them. The cipher key comes from
// KEY_ENCRYPTION_SECRET and must be exactly 32 bytes.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Common errors returned by the cipher.
var (
	ErrBadKeyLength = errors.New("secrets: encryption key must be 32 bytes")
	ErrCiphertext   = errors.New("secrets: malformed ciphertext")
)

// KeyLength is the required encryption key length (AES-256).
const KeyLength = 32

// Cipher seals and opens key material with AES-256-GCM.
// The wire form is base64(nonce || ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte secret.
func NewCipher(secret []byte) (*Cipher, error) {
	if len(secret) != KeyLength {
		return nil, fmt.Errorf("%w: got %d", ErrBadKeyLength, len(secret))
	}

	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce and returns the base64 wire form.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 wire-form ciphertext produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCiphertext, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertext
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCiphertext, err)
	}

	return string(plaintext), nil
}
