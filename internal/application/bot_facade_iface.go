package application

import (
	"context"

	"telegram-gpt-relay/internal/domain/model"
)

// ChatUseCaseIface is the part of usecase.ChatUseCase the facade drives.
type ChatUseCaseIface interface {
	StartChat(ctx context.Context, userID int64) (*model.ChatRecord, error)
	SendMessage(ctx context.Context, userID int64, text string) (string, error)
	EndChat(ctx context.Context, userID int64) error
	TokenUsage(ctx context.Context, userID int64) (string, error)
	Status(ctx context.Context, userID int64) (model.ChatState, error)
}

// TranslatorIface resolves locale keys; args are applied with fmt.Sprintf.
type TranslatorIface interface {
	T(key string, args ...interface{}) string
}
