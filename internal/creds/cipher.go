// ABOUTME: AEAD sealing of credential payloads with ChaCha20-Poly1305.
// ABOUTME: Handles key supply vs. per-process generation and its warning.

package creds

import (
	"crypto/rand"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required encryption key length in bytes.
const KeySize = chacha20poly1305.KeySize

// cipher seals and opens credential payloads.
type cipher struct {
	key []byte
}

// newCipher builds a cipher from the supplied key. When key is nil a random
// key is generated for the process lifetime and a warning is logged, because
// every secret sealed under a generated key is unrecoverable after restart.
func newCipher(key []byte, logger *slog.Logger) (*cipher, error) {
	if key == nil {
		key = make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating encryption key: %w", err)
		}
		logger.Warn("no credential encryption key supplied; generated one for this process",
			"consequence", "stored secrets will be unrecoverable after restart",
		)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return &cipher{key: key}, nil
}

// seal encrypts a payload. The nonce is prepended to the ciphertext.
func (c *cipher) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a payload produced by seal.
func (c *cipher) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return plaintext, nil
}
