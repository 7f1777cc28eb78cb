// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/format"
	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/domain/ports/repository"
	"telegram-gpt-relay/internal/infra/logging"
	"telegram-gpt-relay/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// PricePer1KTokens is the flat rate quoted in usage summaries.
const PricePer1KTokens = 0.002

type ChatUseCase interface {
	// StartChat opens a conversation. An active chat is left untouched and reported
	// with domain.ErrActiveChatExists.
	StartChat(ctx context.Context, userID int64) (*model.ChatRecord, error)
	// SendMessage runs one exchange and returns the reply formatted for Telegram HTML.
	SendMessage(ctx context.Context, userID int64, text string) (string, error)
	// EndChat discards the conversation. Ending without an active chat is a no-op.
	EndChat(ctx context.Context, userID int64) error
	// TokenUsage returns the human-readable usage summary of the active chat.
	TokenUsage(ctx context.Context, userID int64) (string, error)
	Status(ctx context.Context, userID int64) (model.ChatState, error)
	Report(ctx context.Context, userID int64) (*UsageReport, error)
}

// UsageReport is the read-only view served by the admin API.
type UsageReport struct {
	UserID      int64           `json:"user_id"`
	State       model.ChatState `json:"state"`
	SessionID   string          `json:"session_id,omitempty"`
	TotalTokens int             `json:"total_tokens"`
	Exchanges   int             `json:"exchanges"`
	Summary     string          `json:"summary,omitempty"`
}

// ChatOptions tunes new sessions and the exchange pipeline.
type ChatOptions struct {
	Model             string
	SystemPrompt      string
	Budget            int
	LockTTL           time.Duration
	LockWait          time.Duration // how long a request queues for a busy user
	CompletionTimeout time.Duration
}

type chatUC struct {
	records repository.ChatRecordRepository
	tm      repository.TransactionManager
	locker  repository.Locker
	ai      adapter.CompletionService
	opts    ChatOptions
	log     *zerolog.Logger
	devMode bool
}

func NewChatUseCase(
	records repository.ChatRecordRepository,
	tm repository.TransactionManager,
	locker repository.Locker,
	ai adapter.CompletionService,
	opts ChatOptions,
	logger *zerolog.Logger,
	devMode bool,
) *chatUC {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	l := logger.With().Str("component", "ChatUseCase").Logger()
	return &chatUC{records: records, tm: tm, locker: locker, ai: ai, opts: opts, log: &l, devMode: devMode}
}

func (c *chatUC) sessionConfig() model.SessionConfig {
	return model.SessionConfig{Model: c.opts.Model, SystemPrompt: c.opts.SystemPrompt, Budget: c.opts.Budget}
}

func lockKey(userID int64) string { return fmt.Sprintf("lock:chat:%d", userID) }

// withUserLock serializes every access to one user's record, reads included, so no reader
// can observe (or cache) a record while an exchange is being written. Waiting for the lock
// is bounded by LockWait and reported as domain.ErrLockTimeout.
func (c *chatUC) withUserLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	key := lockKey(userID)
	lctx, cancel := context.WithTimeout(ctx, c.opts.LockWait)
	token, err := c.locker.Lock(lctx, key, c.opts.LockTTL)
	cancel()
	if err != nil {
		return fmt.Errorf("lock user %d: %w", userID, err)
	}
	defer func() {
		// release even if the caller's ctx is already cancelled
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.locker.Unlock(uctx, key, token); err != nil {
			c.log.Warn().Err(err).Int64("tg_id", userID).Msg("unlock failed")
		}
	}()
	return fn(ctx)
}

func (c *chatUC) StartChat(ctx context.Context, userID int64) (*model.ChatRecord, error) {
	defer logging.TraceDuration(c.log, "ChatUC.StartChat")()
	var out *model.ChatRecord
	err := c.withUserLock(ctx, userID, func(ctx context.Context) error {
		rec, err := c.records.Load(ctx, nil, userID)
		if err != nil {
			return err
		}
		if err := rec.Apply(model.EventStart, c.sessionConfig()); err != nil {
			out = rec
			return err
		}
		if err := c.records.Save(ctx, nil, rec); err != nil {
			return err
		}
		out = rec
		logging.With(logging.WithSessID(ctx, rec.Session.ID), c.log).Info().
			Int64("tg_id", userID).Str("model", rec.Session.Model).Msg("chat started")
		return nil
	})
	metrics.IncChatEvent(string(model.EventStart), resultOf(err))
	return out, err
}

func (c *chatUC) SendMessage(ctx context.Context, userID int64, text string) (string, error) {
	defer logging.TraceDuration(c.log, "ChatUC.SendMessage")()
	if strings.TrimSpace(text) == "" {
		metrics.IncChatEvent(string(model.EventMessage), resultOf(domain.ErrInvalidArgument))
		return "", domain.ErrInvalidArgument
	}

	var reply string
	err := c.withUserLock(ctx, userID, func(ctx context.Context) error {
		rec, err := c.records.Load(ctx, nil, userID)
		if err != nil {
			return err
		}
		if err := rec.Apply(model.EventMessage, c.sessionConfig()); err != nil {
			return err
		}
		ctx = logging.WithSessID(ctx, rec.Session.ID)
		log := logging.With(ctx, c.log)

		// the stored session is only replaced once the exchange fully succeeded
		draft := rec.Session.Clone()
		if err := draft.AddUserTurn(text); err != nil {
			return err
		}
		completion, err := c.complete(ctx, draft)
		if err != nil {
			log.Warn().Err(err).Int64("tg_id", userID).Msg("completion failed")
			return err
		}
		ex, err := draft.RecordAssistantTurn(completion.Reply, completion.Usage.TotalTokens)
		if err != nil {
			return err
		}
		if ex.Cost < 0 {
			log.Warn().Int("cost", ex.Cost).Int("reported_total", completion.Usage.TotalTokens).
				Msg("provider reported a total below the booked history")
		}
		rec.Session = draft

		err = c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := c.records.Save(ctx, tx, rec); err != nil {
				return err
			}
			return c.records.AppendExchange(ctx, tx, repository.ExchangeLog{
				SessionID:   draft.ID,
				UserID:      userID,
				Cost:        ex.Cost,
				TotalTokens: ex.TotalTokens,
				Evicted:     ex.Evicted,
				CreatedAt:   time.Now(),
			})
		})
		if err != nil {
			return err
		}

		metrics.ObserveExchange(ex.Cost, ex.Evicted)
		log.Info().
			Int64("tg_id", userID).
			Int("cost", ex.Cost).
			Int("total_tokens", ex.TotalTokens).
			Int("evicted", ex.Evicted).
			Str("text", logging.Redact(text, c.devMode)).
			Msg("exchange recorded")
		reply = format.Reply(completion.Reply)
		return nil
	})
	metrics.IncChatEvent(string(model.EventMessage), resultOf(err))
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *chatUC) complete(ctx context.Context, s *model.ChatSession) (adapter.Completion, error) {
	if c.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CompletionTimeout)
		defer cancel()
	}
	msgs := make([]adapter.Message, 0, len(s.Transcript))
	for _, t := range s.Transcript {
		msgs = append(msgs, adapter.Message{Role: string(t.Role), Content: t.Content})
	}
	out, err := c.ai.Complete(ctx, s.Model, msgs)
	if err != nil {
		return adapter.Completion{}, err
	}
	if strings.TrimSpace(out.Reply) == "" || out.Usage.TotalTokens <= 0 {
		return adapter.Completion{}, fmt.Errorf("%s: %w", c.ai.Name(), domain.ErrMalformedResponse)
	}
	return out, nil
}

func (c *chatUC) EndChat(ctx context.Context, userID int64) error {
	err := c.withUserLock(ctx, userID, func(ctx context.Context) error {
		rec, err := c.records.Load(ctx, nil, userID)
		if err != nil {
			return err
		}
		wasActive := rec.Active()
		if err := rec.Apply(model.EventEnd, c.sessionConfig()); err != nil {
			return err
		}
		if !wasActive {
			return nil
		}
		if err := c.records.Save(ctx, nil, rec); err != nil {
			return err
		}
		c.log.Info().Int64("tg_id", userID).Msg("chat ended")
		return nil
	})
	metrics.IncChatEvent(string(model.EventEnd), resultOf(err))
	return err
}

// load reads the record under the user lock.
func (c *chatUC) load(ctx context.Context, userID int64) (*model.ChatRecord, error) {
	var rec *model.ChatRecord
	err := c.withUserLock(ctx, userID, func(ctx context.Context) error {
		var err error
		rec, err = c.records.Load(ctx, nil, userID)
		return err
	})
	return rec, err
}

func (c *chatUC) TokenUsage(ctx context.Context, userID int64) (string, error) {
	rec, err := c.load(ctx, userID)
	if err == nil {
		err = rec.Apply(model.EventUsage, c.sessionConfig())
	}
	metrics.IncChatEvent(string(model.EventUsage), resultOf(err))
	if err != nil {
		return "", err
	}
	return UsageSummary(rec.Session.TotalTokens()), nil
}

func (c *chatUC) Status(ctx context.Context, userID int64) (model.ChatState, error) {
	rec, err := c.load(ctx, userID)
	if err != nil {
		return model.NoActiveChat, err
	}
	return rec.State, nil
}

func (c *chatUC) Report(ctx context.Context, userID int64) (*UsageReport, error) {
	rec, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	rep := &UsageReport{UserID: userID, State: rec.State}
	if rec.Active() {
		rep.SessionID = rec.Session.ID
		rep.TotalTokens = rec.Session.TotalTokens()
		rep.Exchanges = rec.Session.Exchanges()
		rep.Summary = UsageSummary(rep.TotalTokens)
	}
	return rep, nil
}

// UsageSummary renders the token usage line shown to users.
func UsageSummary(totalTokens int) string {
	cost := PricePer1KTokens * float64(totalTokens) / 1000
	return fmt.Sprintf("You have used %d tokens in this chat session. The estimated cost is $%.2f at $%.3f / 1K tokens.",
		totalTokens, cost, PricePer1KTokens)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrContextTooLong):
		return "context_too_long"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, domain.ErrNoActiveChat):
		return "no_active_chat"
	case errors.Is(err, domain.ErrActiveChatExists):
		return "active_chat_exists"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}
