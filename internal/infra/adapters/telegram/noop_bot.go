package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// Replies are printed to out instead of being sent to Telegram.
type NoopBotAdapter struct {
	out io.Writer
	log *zerolog.Logger
}

func NewNoopBotAdapter(out io.Writer, logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "telegram.Noop").Logger()
	return &NoopBotAdapter{out: out, log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	return b.SendReply(ctx, tgID, adapter.Reply{Text: text})
}

func (b *NoopBotAdapter) SendReply(ctx context.Context, tgID int64, reply adapter.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Debug().Int64("tg_id", tgID).Bool("html", reply.HTML).Int("len", len(reply.Text)).Msg("reply")
	if _, err := fmt.Fprintf(b.out, "bot> %s\n", reply.Text); err != nil {
		return err
	}
	if len(reply.Keyboard) > 0 {
		var labels []string
		for _, row := range reply.Keyboard {
			labels = append(labels, row...)
		}
		_, err := fmt.Fprintf(b.out, "     [%s]\n", strings.Join(labels, "] ["))
		return err
	}
	return nil
}

// RunConsole reads lines from in and routes each as a message from userID, until EOF or
// ctx is done.
func (b *NoopBotAdapter) RunConsole(ctx context.Context, in io.Reader, userID int64, router *Router) error {
	sc := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := router.Route(ctx, Inbound{UserID: userID, ChatID: userID, Text: line}); err != nil {
			b.log.Error().Err(err).Msg("route console line")
		}
	}
}
