package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/application"
	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/infra/logging"
	"telegram-gpt-relay/internal/infra/metrics"
	red "telegram-gpt-relay/internal/infra/redis"
)

// Inbound is one user message, independent of the transport that delivered it.
type Inbound struct {
	UserID int64
	ChatID int64
	Text   string
}

// command returns the bot command without slash and @botname, or "".
func (in Inbound) command() (name, args string) {
	text := strings.TrimSpace(in.Text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ActiveCounter reports how many users are mid-conversation.
type ActiveCounter interface {
	CountActive(ctx context.Context, qx any) (int, error)
}

// typingNotifier is implemented by transports that can show a typing indicator.
type typingNotifier interface {
	SendTyping(ctx context.Context, chatID int64) error
}

type handler func(ctx context.Context, in Inbound) error

// Router maps commands, quick-reply buttons and free text to the bot facade and sends
// the resulting replies through out.
type Router struct {
	facade    *application.BotFacade
	out       adapter.TelegramBotAdapter
	limiter   RateLimiter
	rateLimit int
	admins    map[int64]struct{}
	counter   ActiveCounter
	texts     application.TranslatorIface
	log       *zerolog.Logger

	commands map[string]handler
	buttons  map[string]handler
}

type RouterOptions struct {
	Limiter            RateLimiter // nil disables rate limiting
	RateLimitPerMinute int
	AdminIDs           []int64
	Counter            ActiveCounter
}

func NewRouter(facade *application.BotFacade, out adapter.TelegramBotAdapter, opts RouterOptions, logger *zerolog.Logger) *Router {
	l := logger.With().Str("component", "telegram.Router").Logger()
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	r := &Router{
		facade:    facade,
		out:       out,
		limiter:   opts.Limiter,
		rateLimit: opts.RateLimitPerMinute,
		admins:    admins,
		counter:   opts.Counter,
		texts:     facade.T,
		log:       &l,
	}
	r.commands = r.commandRoutes()
	r.buttons = r.buttonRoutes()
	return r
}

// commandRoutes defines all available bot commands and their handlers.
func (r *Router) commandRoutes() map[string]handler {
	return map[string]handler{
		"start": r.handleStart,
		"end":   r.handleEnd,
		"usage": r.handleUsage,
		"help":  r.handleHelp,

		"stats": r.adminOnly(r.handleStats),
	}
}

// buttonRoutes maps quick-reply button labels to handlers.
func (r *Router) buttonRoutes() map[string]handler {
	newChat, usage, end := r.facade.Buttons()
	return map[string]handler{
		newChat: r.handleNewChat,
		usage:   r.handleUsage,
		end:     r.handleEnd,
	}
}

func (r *Router) adminOnly(next handler) handler {
	return func(ctx context.Context, in Inbound) error {
		if _, ok := r.admins[in.UserID]; !ok {
			return r.out.SendMessage(ctx, in.ChatID, r.texts.T("error_unauthorized"))
		}
		return next(ctx, in)
	}
}

// Route handles one inbound message end to end.
func (r *Router) Route(ctx context.Context, in Inbound) error {
	ctx = logging.WithTgID(logging.WithNewTraceID(ctx), in.UserID)
	log := logging.With(ctx, r.log)

	name, _ := in.command()
	bucket := "message"
	if name != "" {
		bucket = "/" + name
	}
	if !r.allow(ctx, in.UserID, bucket) {
		metrics.IncRateLimited(bucket)
		return r.out.SendMessage(ctx, in.ChatID, r.texts.T("rate_limited"))
	}

	if name != "" {
		if h, ok := r.commands[name]; ok {
			metrics.IncTelegramUpdate("command", bucket)
			return h(ctx, in)
		}
		metrics.IncTelegramUpdate("command", "unknown")
		return r.handleHelp(ctx, in)
	}
	if h, ok := r.buttons[strings.TrimSpace(in.Text)]; ok {
		metrics.IncTelegramUpdate("button", strings.TrimSpace(in.Text))
		return h(ctx, in)
	}
	metrics.IncTelegramUpdate("text", "message")
	log.Debug().Int("len", len(in.Text)).Msg("relaying message")
	return r.handleText(ctx, in)
}

func (r *Router) allow(ctx context.Context, userID int64, bucket string) bool {
	if r.limiter == nil || r.rateLimit <= 0 {
		return true
	}
	ok, err := r.limiter.Allow(ctx, red.UserCommandKey(userID, bucket), r.rateLimit, time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (r *Router) reply(ctx context.Context, in Inbound, rep adapter.Reply, err error) error {
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", in.UserID).Msg("handler failed")
	}
	return r.out.SendReply(ctx, in.ChatID, rep)
}

func (r *Router) handleStart(ctx context.Context, in Inbound) error {
	rep, err := r.facade.HandleStart(ctx, in.UserID)
	return r.reply(ctx, in, rep, err)
}

func (r *Router) handleNewChat(ctx context.Context, in Inbound) error {
	rep, err := r.facade.HandleNewChat(ctx, in.UserID)
	return r.reply(ctx, in, rep, err)
}

func (r *Router) handleEnd(ctx context.Context, in Inbound) error {
	rep, err := r.facade.HandleEndChat(ctx, in.UserID)
	return r.reply(ctx, in, rep, err)
}

func (r *Router) handleUsage(ctx context.Context, in Inbound) error {
	rep, err := r.facade.HandleTokenUsage(ctx, in.UserID)
	return r.reply(ctx, in, rep, err)
}

func (r *Router) handleHelp(ctx context.Context, in Inbound) error {
	return r.out.SendMessage(ctx, in.ChatID, r.texts.T("help"))
}

func (r *Router) handleStats(ctx context.Context, in Inbound) error {
	if r.counter == nil {
		return r.out.SendMessage(ctx, in.ChatID, r.texts.T("error_generic"))
	}
	n, err := r.counter.CountActive(ctx, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("count active chats")
		return r.out.SendMessage(ctx, in.ChatID, r.texts.T("error_generic"))
	}
	return r.out.SendMessage(ctx, in.ChatID, r.texts.T("stats_active", n))
}

func (r *Router) handleText(ctx context.Context, in Inbound) error {
	if t, ok := r.out.(typingNotifier); ok {
		_ = t.SendTyping(ctx, in.ChatID)
	}
	rep, err := r.facade.HandleMessage(ctx, in.UserID, in.Text)
	return r.reply(ctx, in, rep, err)
}
