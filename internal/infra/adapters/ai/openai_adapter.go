package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.CompletionService = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.CompletionService on the Chat Completions API.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	guard  *TokenGuard
	log    *zerolog.Logger
}

// NewOpenAIAdapter builds the client. baseURL may point at any OpenAI-compatible gateway.
// A nil guard disables the local context-length estimate.
func NewOpenAIAdapter(apiKey, baseURL, model string, guard *TokenGuard, logger *zerolog.Logger) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = string(openai.ChatModelGPT3_5Turbo)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	l := logger.With().Str("component", "OpenAIAdapter").Logger()
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
		guard:  guard,
		log:    &l,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Complete(ctx context.Context, model string, messages []adapter.Message) (adapter.Completion, error) {
	model = modelOrDefault(model, o.model)
	if len(messages) == 0 {
		return adapter.Completion{}, fmt.Errorf("openai: no messages: %w", domain.ErrInvalidArgument)
	}
	if err := o.guard.Check(model, messages); err != nil {
		metrics.PrecheckBlocked(o.Name(), model)
		return adapter.Completion{}, fmt.Errorf("openai: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.Completion{}, o.mapError(err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return adapter.Completion{}, fmt.Errorf("openai: empty choices: %w", domain.ErrMalformedResponse)
	}
	return adapter.Completion{
		Reply: resp.Choices[0].Message.Content,
		Usage: adapter.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (o *OpenAIAdapter) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if isContextLengthError(apiErr.StatusCode, apiErr.Code, apiErr.Message) {
			return fmt.Errorf("openai: %s: %w", apiErr.Message, domain.ErrContextTooLong)
		}
		o.log.Warn().Int("status", apiErr.StatusCode).Str("code", apiErr.Code).Msg("chat completion rejected")
		return fmt.Errorf("openai http %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func isContextLengthError(status int, code, message string) bool {
	if code == "context_length_exceeded" {
		return true
	}
	return status == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "maximum context length")
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
