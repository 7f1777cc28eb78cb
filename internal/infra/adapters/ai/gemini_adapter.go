// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

// Complete replays the transcript as chat history and sends the final user turn.
// System turns become the chat's system instruction.
func (g *GeminiAdapter) Complete(ctx context.Context, model string, messages []adapter.Message) (adapter.Completion, error) {
	if len(messages) == 0 {
		return adapter.Completion{}, fmt.Errorf("gemini: no messages: %w", domain.ErrInvalidArgument)
	}
	last := messages[len(messages)-1]
	if strings.ToLower(last.Role) != "user" {
		return adapter.Completion{}, fmt.Errorf("gemini: last message must be from user: %w", domain.ErrInvalidArgument)
	}
	system, history := splitSystem(messages[:len(messages)-1])

	cfg := &genai.GenerateContentConfig{}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	chat, err := g.client.Chats.Create(ctx, modelOrDefault(model, g.defaultModel), cfg, toGenAIHistory(history))
	if err != nil {
		return adapter.Completion{}, mapGeminiError(err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return adapter.Completion{}, mapGeminiError(err)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if text == "" {
		return adapter.Completion{}, fmt.Errorf("gemini: empty candidate: %w", domain.ErrMalformedResponse)
	}
	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return adapter.Completion{Reply: text, Usage: u}, nil
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		if apiErr.Code == http.StatusBadRequest && strings.Contains(msg, "token") && strings.Contains(msg, "exceed") {
			return fmt.Errorf("gemini: %s: %w", apiErr.Message, domain.ErrContextTooLong)
		}
	}
	return fmt.Errorf("gemini: %w", err)
}

// splitSystem joins system turns into one instruction and returns the rest in order.
func splitSystem(msgs []adapter.Message) (string, []adapter.Message) {
	var sys []string
	rest := make([]adapter.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.ToLower(m.Role) == "system" {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
