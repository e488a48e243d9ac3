package secrets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return bytes.Repeat([]byte("k"), KeyLength)
}

func TestNewCipher(t *testing.T) {
	t.Run("accepts 32-byte secret", func(t *testing.T) {
		c, err := NewCipher(testSecret())
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("rejects short secret", func(t *testing.T) {
		c, err := NewCipher([]byte("too-short"))
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrBadKeyLength)
	})
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testSecret())
	require.NoError(t, err)

	sealed, err := c.Encrypt("tvly-dev-abc123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "tvly-dev-abc123")

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "tvly-dev-abc123", opened)
}

func TestCipher_NonceUniqueness(t *testing.T) {
	c, err := NewCipher(testSecret())
	require.NoError(t, err)

	a, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCipher_DecryptErrors(t *testing.T) {
	c, err := NewCipher(testSecret())
	require.NoError(t, err)

	t.Run("rejects invalid base64", func(t *testing.T) {
		_, err := c.Decrypt("%%not-base64%%")
		assert.ErrorIs(t, err, ErrCiphertext)
	})

	t.Run("rejects truncated ciphertext", func(t *testing.T) {
		_, err := c.Decrypt("AAAA")
		assert.ErrorIs(t, err, ErrCiphertext)
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		sealed, err := c.Encrypt("payload")
		require.NoError(t, err)

		other, err := NewCipher(bytes.Repeat([]byte("x"), KeyLength))
		require.NoError(t, err)

		_, err = other.Decrypt(sealed)
		assert.ErrorIs(t, err, ErrCiphertext)
	})
}
