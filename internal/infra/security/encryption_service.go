// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix tags ciphertext so rows written before a key was configured stay readable.
const sealedPrefix = "gcm1:"

var ErrNoKey = errors.New("sealed payload but no encryption key configured")

// TranscriptCipher seals chat transcripts at rest with AES-GCM and a random nonce per payload.
// A nil *TranscriptCipher passes data through unchanged.
type TranscriptCipher struct {
	gcm cipher.AEAD
}

// NewTranscriptCipher returns nil, nil for an empty key.
// Otherwise the key must be 16, 24, or 32 bytes (AES-128/192/256).
func NewTranscriptCipher(key string) (*TranscriptCipher, error) {
	if key == "" {
		return nil, nil
	}
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &TranscriptCipher{gcm: gcm}, nil
}

// Seal returns "gcm1:" + base64(nonce || ciphertext), or the plaintext for a nil cipher.
func (c *TranscriptCipher) Seal(plain []byte) (string, error) {
	if c == nil {
		return string(plain), nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, plain, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Untagged input is returned as is.
func (c *TranscriptCipher) Open(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return []byte(stored), nil
	}
	if c == nil {
		return nil, ErrNoKey
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := c.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return pt, nil
}
