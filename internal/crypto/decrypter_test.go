package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/secretbox"
)

func seal(t *testing.T, key [KeySize]byte, plaintext string) string {
	t.Helper()
	var nonce [24]byte
	_, err := rand.Read(nonce[:])
	require.NoError(t, err)

	sealed := secretbox.Seal(nil, []byte(plaintext), &nonce, &key)
	return base64.StdEncoding.EncodeToString(nonce[:]) + ":" +
		base64.StdEncoding.EncodeToString(sealed)
}

func TestDecrypterRoundTrip(t *testing.T) {
	var key [KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)

	decrypt, err := NewDecrypter(key[:])
	require.NoError(t, err)

	got, err := decrypt(seal(t, key, "the-access-token"))
	require.NoError(t, err)
	assert.Equal(t, "the-access-token", got)
}

func TestDecrypterWrongKey(t *testing.T) {
	var sealKey, otherKey [KeySize]byte
	sealKey[0] = 1
	otherKey[0] = 2

	decrypt, err := NewDecrypter(otherKey[:])
	require.NoError(t, err)

	_, err = decrypt(seal(t, sealKey, "the-access-token"))
	assert.ErrorContains(t, err, "decryption failed")
}

func TestDecrypterRejectsBadKeyLength(t *testing.T) {
	_, err := NewDecrypter([]byte("short"))
	assert.ErrorContains(t, err, "must be 32 bytes")
}

func TestDecrypterRejectsMalformedInput(t *testing.T) {
	var key [KeySize]byte
	decrypt, err := NewDecrypter(key[:])
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"no separator", base64.StdEncoding.EncodeToString([]byte("justonepart"))},
		{"bad nonce base64", "!!!:" + base64.StdEncoding.EncodeToString([]byte("x"))},
		{"short nonce", base64.StdEncoding.EncodeToString([]byte("short")) + ":" + base64.StdEncoding.EncodeToString([]byte("x"))},
		{"bad ciphertext base64", base64.StdEncoding.EncodeToString(make([]byte, 24)) + ":!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decrypt(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestNopDecrypter(t *testing.T) {
	got, err := NopDecrypter("plain-token")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", got)
}
