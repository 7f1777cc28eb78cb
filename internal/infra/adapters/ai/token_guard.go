package ai

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/ports/adapter"
)

const (
	// chat format overhead per message and for priming the reply (gpt-3.5/4 family)
	tokensPerMessage = 3
	tokensPerReply   = 3
	fallbackEncoding = "cl100k_base"
)

// Encoder turns text into tokens.
type Encoder func(text string) int

// TokenGuard estimates the prompt size locally and rejects transcripts that cannot fit the
// context window, sparing a round trip that would fail anyway. A nil guard allows everything.
type TokenGuard struct {
	maxContext int

	mu       sync.Mutex
	encoders map[string]Encoder
	newEnc   func(model string) (Encoder, error)
}

func NewTokenGuard(maxContextTokens int) *TokenGuard {
	return &TokenGuard{maxContext: maxContextTokens, encoders: map[string]Encoder{}, newEnc: tiktokenEncoder}
}

// NewTokenGuardWithEncoder uses enc for every model.
func NewTokenGuardWithEncoder(maxContextTokens int, enc Encoder) *TokenGuard {
	g := NewTokenGuard(maxContextTokens)
	g.newEnc = func(string) (Encoder, error) { return enc, nil }
	return g
}

func tiktokenEncoder(model string) (Encoder, error) {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if tke, err = tiktoken.GetEncoding(fallbackEncoding); err != nil {
			return nil, err
		}
	}
	return func(text string) int { return len(tke.Encode(text, nil, nil)) }, nil
}

// Estimate returns the prompt token estimate, or -1 when no encoder is available.
func (g *TokenGuard) Estimate(model string, messages []adapter.Message) int {
	enc := g.encoder(model)
	if enc == nil {
		return -1
	}
	n := tokensPerReply
	for _, m := range messages {
		n += tokensPerMessage + enc(m.Role) + enc(m.Content)
	}
	return n
}

// Check returns domain.ErrContextTooLong when the estimate meets or exceeds the window.
func (g *TokenGuard) Check(model string, messages []adapter.Message) error {
	if g == nil || g.maxContext <= 0 {
		return nil
	}
	if n := g.Estimate(model, messages); n >= g.maxContext {
		return fmt.Errorf("estimated %d prompt tokens for a %d token window: %w", n, g.maxContext, domain.ErrContextTooLong)
	}
	return nil
}

func (g *TokenGuard) encoder(model string) Encoder {
	g.mu.Lock()
	defer g.mu.Unlock()
	if enc, ok := g.encoders[model]; ok {
		return enc
	}
	enc, err := g.newEnc(model)
	if err != nil {
		enc = nil // cached too, so a missing BPE file is not retried per message
	}
	g.encoders[model] = enc
	return enc
}
