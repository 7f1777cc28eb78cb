// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

// Keyboard is a one-time reply keyboard: rows of button labels that the user can tap
// instead of typing. A nil keyboard leaves the current one; RemoveKeyboard hides it.
type Keyboard [][]string

var RemoveKeyboard = Keyboard{}

// Reply is an outbound message with optional quick-reply affordances.
type Reply struct {
	Text     string
	HTML     bool
	Keyboard Keyboard
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendReply(ctx context.Context, telegramID int64, reply Reply) error
}
