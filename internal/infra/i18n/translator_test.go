//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: hello\nwelcome_user: hello %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "hello" {
			t.Errorf("wanted 'hello', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ada"); got != "hello Ada" {
			t.Errorf("wanted 'hello Ada', got '%s'", got)
		}
	})
}

func TestNewTranslator_FromFS(t *testing.T) {
	fsys := fstest.MapFS{"locales/xx.yaml": {Data: []byte("k: v")}}
	tr, err := NewTranslator(fsys, "xx")
	if err != nil {
		t.Fatal(err)
	}
	if tr.T("k") != "v" || tr.Lang() != "xx" {
		t.Fatalf("unexpected translator state")
	}
	if _, err := NewTranslator(fsys, "missing"); err == nil {
		t.Fatal("expected error for a missing locale")
	}
}

func TestEmbeddedEnglishLocale(t *testing.T) {
	tr, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("embedded en locale: %v", err)
	}
	want := map[string]string{
		"welcome":           "Welcome to GPT telegram bot. ",
		"chat_started":      "A new chat has been started. Write your first message.",
		"usage_unavailable": "There are no token usage stats available.",
		"btn_new_chat":      "💬 New Chat",
		"btn_token_usage":   "🪙 Token usage",
		"btn_end_chat":      "✋ End chat",
	}
	for k, v := range want {
		if got := tr.T(k); got != v {
			t.Errorf("%s: got %q, want %q", k, got, v)
		}
	}
	if got := tr.T("context_too_long", 4096); got != "Reached the max context length of 4096 tokens. Please restart end the chat and start a new one." {
		t.Errorf("context_too_long: got %q", got)
	}
}
