// Package crypto holds the shared-secret decrypter used to recover user
// access tokens that arrive encrypted in operation messages.
package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required shared-secret length in bytes.
const KeySize = 32

// Decrypter decodes a "base64(nonce):base64(ciphertext)" string into the
// original plaintext.
type Decrypter func(ciphertext string) (string, error)

// NewDecrypter builds a Decrypter around a 32-byte symmetric key.
func NewDecrypter(key []byte) (Decrypter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("shared secret key must be %d bytes, got %d", KeySize, len(key))
	}
	var boxKey [KeySize]byte
	copy(boxKey[:], key)

	return func(encrypted string) (string, error) {
		parts := strings.SplitN(encrypted, ":", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("encrypted value is not in nonce:ciphertext form")
		}
		rawNonce, err := base64.StdEncoding.DecodeString(parts[0])
		if err != nil {
			return "", fmt.Errorf("failed to decode nonce: %w", err)
		}
		if len(rawNonce) != 24 {
			return "", fmt.Errorf("nonce must be 24 bytes, got %d", len(rawNonce))
		}
		ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return "", fmt.Errorf("failed to decode ciphertext: %w", err)
		}

		var nonce [24]byte
		copy(nonce[:], rawNonce)
		plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &boxKey)
		if !ok {
			return "", fmt.Errorf("decryption failed: key or ciphertext mismatch")
		}
		return string(plaintext), nil
	}, nil
}

// NopDecrypter returns the ciphertext as-is, for deployments that pass
// tokens in the clear.
func NopDecrypter(ciphertext string) (string, error) {
	return ciphertext, nil
}
