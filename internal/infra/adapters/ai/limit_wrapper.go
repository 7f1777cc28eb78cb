package ai

import (
	"context"

	"telegram-gpt-relay/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.CompletionService = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.CompletionService
	sem   chan struct{}
}

// NewLimitedAI bounds the number of in-flight completions across all users.
func NewLimitedAI(inner adapter.CompletionService, maxConcurrent int) adapter.CompletionService {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) Complete(ctx context.Context, model string, messages []adapter.Message) (adapter.Completion, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.Completion{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, model, messages)
}
