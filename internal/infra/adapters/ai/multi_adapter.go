// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"telegram-gpt-relay/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*MultiAIAdapter)(nil)

var ErrNoProvider = errors.New("no completion provider configured")

// MultiAIAdapter routes each completion to a provider by model name, so sessions started
// on a gemini-* model keep talking to Gemini even when the default provider is OpenAI.
type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.CompletionService
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.CompletionService,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) Name() string { return "multi" }

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) adapter.CompletionService {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a
	}
	return m.byProvider[m.defaultProvider]
}

func (m *MultiAIAdapter) Complete(ctx context.Context, model string, messages []adapter.Message) (adapter.Completion, error) {
	a := m.pick(model)
	if a == nil {
		return adapter.Completion{}, ErrNoProvider
	}
	return a.Complete(ctx, model, messages)
}
