package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/adapter"
)

// BotFacade turns chat use-case outcomes into the replies and keyboards users see.
// Expected conditions (no chat, context too long, provider failure) become friendly replies
// with a nil error; only unexpected failures return an error, alongside a generic reply.
type BotFacade struct {
	ChatUC     ChatUseCaseIface
	T          TranslatorIface
	MaxContext int
	log        *zerolog.Logger
}

func NewBotFacade(chatUC ChatUseCaseIface, t TranslatorIface, maxContext int, logger *zerolog.Logger) *BotFacade {
	l := logger.With().Str("component", "BotFacade").Logger()
	return &BotFacade{ChatUC: chatUC, T: t, MaxContext: maxContext, log: &l}
}

func (b *BotFacade) newChatKeyboard() adapter.Keyboard {
	return adapter.Keyboard{{b.T.T("btn_new_chat")}}
}

func (b *BotFacade) activeChatKeyboard() adapter.Keyboard {
	return adapter.Keyboard{{b.T.T("btn_token_usage"), b.T.T("btn_end_chat")}}
}

// Buttons returns the labels of the three quick-reply buttons for routing.
func (b *BotFacade) Buttons() (newChat, tokenUsage, endChat string) {
	return b.T.T("btn_new_chat"), b.T.T("btn_token_usage"), b.T.T("btn_end_chat")
}

// HandleStart greets the user and offers the next step for their current state.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64) (adapter.Reply, error) {
	state, err := b.ChatUC.Status(ctx, tgID)
	if err != nil {
		return b.failure(), err
	}
	if state == model.ActiveChat {
		return adapter.Reply{
			Text:     b.T.T("welcome") + b.T.T("chat_already_active"),
			Keyboard: b.activeChatKeyboard(),
		}, nil
	}
	return adapter.Reply{
		Text:     b.T.T("welcome") + b.T.T("chat_start_prompt"),
		Keyboard: b.newChatKeyboard(),
	}, nil
}

func (b *BotFacade) HandleNewChat(ctx context.Context, tgID int64) (adapter.Reply, error) {
	_, err := b.ChatUC.StartChat(ctx, tgID)
	switch {
	case err == nil:
		return adapter.Reply{Text: b.T.T("chat_started"), Keyboard: adapter.RemoveKeyboard}, nil
	case errors.Is(err, domain.ErrActiveChatExists):
		return adapter.Reply{Text: b.T.T("chat_already_active"), Keyboard: b.activeChatKeyboard()}, nil
	default:
		return b.classify(err)
	}
}

// HandleMessage relays free text to the model. The reply is already Telegram HTML.
func (b *BotFacade) HandleMessage(ctx context.Context, tgID int64, text string) (adapter.Reply, error) {
	reply, err := b.ChatUC.SendMessage(ctx, tgID, text)
	if err != nil {
		return b.classify(err)
	}
	return adapter.Reply{Text: reply, HTML: true, Keyboard: b.activeChatKeyboard()}, nil
}

func (b *BotFacade) HandleTokenUsage(ctx context.Context, tgID int64) (adapter.Reply, error) {
	summary, err := b.ChatUC.TokenUsage(ctx, tgID)
	if errors.Is(err, domain.ErrNoActiveChat) {
		return adapter.Reply{Text: b.T.T("usage_unavailable"), Keyboard: b.newChatKeyboard()}, nil
	}
	if err != nil {
		return b.classify(err)
	}
	return adapter.Reply{Text: summary, Keyboard: b.activeChatKeyboard()}, nil
}

func (b *BotFacade) HandleEndChat(ctx context.Context, tgID int64) (adapter.Reply, error) {
	if err := b.ChatUC.EndChat(ctx, tgID); err != nil {
		return b.classify(err)
	}
	return adapter.Reply{Text: b.T.T("chat_ended"), Keyboard: b.newChatKeyboard()}, nil
}

// classify maps use-case errors to replies.
func (b *BotFacade) classify(err error) (adapter.Reply, error) {
	switch {
	case errors.Is(err, domain.ErrContextTooLong):
		return adapter.Reply{Text: b.T.T("context_too_long", b.MaxContext), Keyboard: b.activeChatKeyboard()}, nil
	case errors.Is(err, domain.ErrMalformedResponse):
		return adapter.Reply{Text: b.T.T("completion_failed"), Keyboard: b.activeChatKeyboard()}, nil
	case errors.Is(err, domain.ErrNoActiveChat):
		return adapter.Reply{Text: b.T.T("chat_none_active"), Keyboard: b.newChatKeyboard()}, nil
	case errors.Is(err, domain.ErrInvalidArgument):
		return adapter.Reply{Text: b.T.T("empty_message")}, nil
	case errors.Is(err, domain.ErrLockTimeout):
		return adapter.Reply{Text: b.T.T("busy")}, nil
	case errors.Is(err, context.DeadlineExceeded):
		// completion timeout: same user-facing outcome as a provider failure
		return adapter.Reply{Text: b.T.T("completion_failed"), Keyboard: b.activeChatKeyboard()}, err
	default:
		b.log.Error().Err(err).Msg("unexpected chat error")
		return b.failure(), err
	}
}

func (b *BotFacade) failure() adapter.Reply {
	return adapter.Reply{Text: b.T.T("error_generic")}
}
