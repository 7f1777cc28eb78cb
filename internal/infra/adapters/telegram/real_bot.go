package telegram

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/config"
	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/infra/metrics"
	"telegram-gpt-relay/internal/infra/worker"
)

// MaxMessageLength is the Telegram limit on a single text message, in characters.
const MaxMessageLength = 4096

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// sender is the part of *tgbotapi.BotAPI the adapter uses to talk back.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RealTelegramBotAdapter uses tgbotapi to poll updates and hands them to a Router.
type RealTelegramBotAdapter struct {
	api    *tgbotapi.BotAPI
	bot    sender
	cfg    *config.BotConfig
	router *Router
	pool   *worker.Pool
	log    *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "telegram.RealBot").Str("bot", api.Self.UserName).Logger()
	return &RealTelegramBotAdapter{
		api:  api,
		bot:  api,
		cfg:  cfg,
		pool: worker.NewPool(cfg.Workers, &l),
		log:  &l,
	}, nil
}

// SetRouter attaches the router that handles inbound messages. The router itself needs
// the adapter to send replies, so it is wired after construction.
func (r *RealTelegramBotAdapter) SetRouter(router *Router) { r.router = router }

// StartPolling blocks until ctx is cancelled or StopPolling is called, and returns only
// after every dispatched update has been handled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.router == nil {
		return errors.New("telegram router is not set")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = r.cfg.PollTimeout
	updates := r.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	// workers outlive ctx so exchanges already dispatched finish; Stop drains them
	r.pool.Start(context.WithoutCancel(ctx))
	defer r.pool.Stop()

	if err := r.SetMenuCommands(ctx); err != nil {
		r.log.Warn().Err(err).Msg("set menu commands")
	}
	r.log.Info().Int("workers", r.cfg.Workers).Msg("polling started")

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := inboundFromUpdate(up)
			if !ok {
				continue
			}
			if err := r.dispatch(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Int64("tg_id", in.UserID).Msg("dispatch update")
			}
		}
	}
}

// dispatch queues in on the worker that owns its user, so one user's messages are handled
// strictly in arrival order while other users proceed in parallel.
func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, in Inbound) error {
	return r.pool.SubmitKeyed(ctx, in.UserID, func(ctx context.Context) error {
		return r.router.Route(ctx, in)
	})
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// inboundFromUpdate keeps private text messages only; group chats, edits and media are ignored.
func inboundFromUpdate(up tgbotapi.Update) (Inbound, bool) {
	m := up.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return Inbound{}, false
	}
	if !m.Chat.IsPrivate() {
		return Inbound{}, false
	}
	return Inbound{UserID: m.From.ID, ChatID: m.Chat.ID, Text: m.Text}, true
}

// SetMenuCommands publishes the command list shown in the Telegram client menu.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context) error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Show the menu"},
		tgbotapi.BotCommand{Command: "usage", Description: "Token usage of the current chat"},
		tgbotapi.BotCommand{Command: "end", Description: "End the current chat"},
		tgbotapi.BotCommand{Command: "help", Description: "List commands"},
	)
	_, err := r.bot.Request(cmds)
	return err
}

func (r *RealTelegramBotAdapter) SendTyping(ctx context.Context, chatID int64) error {
	_, err := r.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	return r.SendReply(ctx, tgID, adapter.Reply{Text: text})
}

// SendReply sends text split into Telegram-sized chunks. The keyboard is attached to the
// last chunk. HTML that Telegram refuses to parse is resent as plain text.
func (r *RealTelegramBotAdapter) SendReply(ctx context.Context, tgID int64, reply adapter.Reply) error {
	chunks := splitMessage(reply.Text, MaxMessageLength)
	metrics.ObserveReplyChunks(len(chunks))
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg := tgbotapi.NewMessage(tgID, chunk)
		if reply.HTML {
			msg.ParseMode = tgbotapi.ModeHTML
		}
		if i == len(chunks)-1 {
			if markup := replyMarkup(reply.Keyboard); markup != nil {
				msg.ReplyMarkup = markup
			}
		}
		_, err := r.bot.Send(msg)
		if err != nil && reply.HTML && isParseError(err) {
			r.log.Warn().Err(err).Msg("html rejected, resending as plain text")
			metrics.IncHTMLFallback()
			msg.ParseMode = ""
			_, err = r.bot.Send(msg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// replyMarkup returns nil when the reply should leave the current keyboard alone.
func replyMarkup(kb adapter.Keyboard) any {
	switch {
	case kb == nil:
		return nil
	case len(kb) == 0:
		return tgbotapi.NewRemoveKeyboard(true)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.OneTimeKeyboard = true
	markup.ResizeKeyboard = true
	return markup
}

func isParseError(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == 400 && strings.Contains(tgErr.Message, "parse entities")
	}
	return strings.Contains(err.Error(), "parse entities")
}

// splitMessage cuts text into pieces of at most limit runes, preferring newline boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
