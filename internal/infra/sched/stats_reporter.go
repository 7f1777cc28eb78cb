package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/infra/metrics"
)

type ActiveCounter interface {
	CountActive(ctx context.Context, qx any) (int, error)
}

// StatsReporter periodically publishes the active chat gauge and, when a pool is
// given, Postgres pool statistics.
type StatsReporter struct {
	interval time.Duration
	counter  ActiveCounter
	pool     *pgxpool.Pool
	log      *zerolog.Logger
}

func NewStatsReporter(interval time.Duration, counter ActiveCounter, pool *pgxpool.Pool, logger *zerolog.Logger) *StatsReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "StatsReporter").Logger()
	return &StatsReporter{interval: interval, counter: counter, pool: pool, log: &l}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats reporter")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats reporter")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StatsReporter) tick(ctx context.Context) {
	n, err := w.counter.CountActive(ctx, nil)
	if err != nil {
		w.log.Error().Err(err).Msg("count active chats")
	} else {
		metrics.SetActiveSessions(n)
	}
	if w.pool != nil {
		metrics.ObservePool(w.pool.Stat())
	}
}
