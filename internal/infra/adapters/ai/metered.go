package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/infra/metrics"
)

var _ adapter.CompletionService = (*meteredAI)(nil)

type meteredAI struct {
	inner adapter.CompletionService
	log   *zerolog.Logger
}

// NewMeteredAI records latency and token metrics for every completion.
func NewMeteredAI(inner adapter.CompletionService, logger *zerolog.Logger) adapter.CompletionService {
	l := logger.With().Str("component", "ai").Str("provider", inner.Name()).Logger()
	return &meteredAI{inner: inner, log: &l}
}

func (m *meteredAI) Name() string { return m.inner.Name() }

func (m *meteredAI) Complete(ctx context.Context, model string, messages []adapter.Message) (adapter.Completion, error) {
	start := time.Now()
	out, err := m.inner.Complete(ctx, model, messages)
	elapsed := time.Since(start)
	metrics.ObserveCompletion(m.inner.Name(), model, out.Usage.PromptTokens, out.Usage.CompletionTokens,
		out.Usage.TotalTokens, int(elapsed.Milliseconds()), err == nil)
	m.log.Debug().
		Str("model", model).
		Int("turns", len(messages)).
		Int("total_tokens", out.Usage.TotalTokens).
		Dur("elapsed", elapsed).
		Err(err).
		Msg("completion")
	return out, err
}
