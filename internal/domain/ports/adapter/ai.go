package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the assistant reply plus the usage reported by the provider.
// Usage.TotalTokens covers the whole transcript sent plus the reply.
type Completion struct {
	Reply string
	Usage Usage
}

// CompletionService is the port for the remote language model.
//
// Implementations return domain.ErrContextTooLong when the transcript does not fit the
// model's context and domain.ErrMalformedResponse when the provider answers without
// usable content.
type CompletionService interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message) (Completion, error)
}
