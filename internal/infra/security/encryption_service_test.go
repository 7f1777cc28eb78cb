//go:build !integration

package security

import (
	"errors"
	"strings"
	"testing"
)

func TestTranscriptCipher(t *testing.T) {
	c, err := NewTranscriptCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewTranscriptCipher: %v", err)
	}
	payload := []byte(`[{"role":"system","content":"You are a helpful assistant."}]`)

	t.Run("seal then open", func(t *testing.T) {
		sealed, err := c.Seal(payload)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "assistant") {
			t.Fatalf("payload not sealed: %q", sealed)
		}
		got, err := c.Open(sealed)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(payload) {
			t.Fatalf("expected %s, got %s", payload, got)
		}
	})

	t.Run("nonce differs per call", func(t *testing.T) {
		a, _ := c.Seal(payload)
		b, _ := c.Seal(payload)
		if a == b {
			t.Fatal("expected distinct ciphertexts")
		}
	})

	t.Run("plain rows stay readable", func(t *testing.T) {
		got, err := c.Open(string(payload))
		if err != nil || string(got) != string(payload) {
			t.Fatalf("expected passthrough, got %q err=%v", got, err)
		}
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		sealed, _ := c.Seal(payload)
		tampered := sealed[:len(sealed)-4] + "AAAA"
		if _, err := c.Open(tampered); err == nil {
			t.Fatal("expected error for tampered payload")
		}
	})
}

func TestTranscriptCipher_NilKey(t *testing.T) {
	c, err := NewTranscriptCipher("")
	if err != nil || c != nil {
		t.Fatalf("expected nil cipher, got %v %v", c, err)
	}
	sealed, _ := c.Seal([]byte("hi"))
	if sealed != "hi" {
		t.Fatalf("expected passthrough, got %q", sealed)
	}
	if _, err := c.Open(sealedPrefix + "AAAA"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
	if _, err := NewTranscriptCipher("short"); err == nil {
		t.Fatal("expected key length error")
	}
}
