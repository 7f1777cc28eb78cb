package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers locally for dev runs. It echoes the last user turn and reports
// a total of roughly one token per four characters of the whole transcript.
type NoopAIAdapter struct {
	delay time.Duration
	log   *zerolog.Logger
}

func NewNoopAIAdapter(delay time.Duration, logger *zerolog.Logger) *NoopAIAdapter {
	l := logger.With().Str("component", "NoopAIAdapter").Logger()
	return &NoopAIAdapter{delay: delay, log: &l}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

func (a *NoopAIAdapter) Complete(ctx context.Context, model string, messages []adapter.Message) (adapter.Completion, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return adapter.Completion{}, ctx.Err()
		}
	}
	if len(messages) == 0 {
		return adapter.Completion{}, fmt.Errorf("noop: no messages: %w", domain.ErrInvalidArgument)
	}
	last := messages[len(messages)-1].Content
	reply := "echo: " + last

	chars := len(reply)
	for _, m := range messages {
		chars += len(m.Content)
	}
	prompt := estimateTokens(chars - len(reply))
	completion := estimateTokens(len(reply))
	a.log.Debug().Str("model", model).Int("turns", len(messages)).Msg("noop completion")
	return adapter.Completion{
		Reply: reply,
		Usage: adapter.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}, nil
}

func estimateTokens(chars int) int {
	n := (chars + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

