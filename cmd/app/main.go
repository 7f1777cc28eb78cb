// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/application"
	"telegram-gpt-relay/internal/config"
	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/domain/ports/repository"
	aiAdapters "telegram-gpt-relay/internal/infra/adapters/ai"
	tele "telegram-gpt-relay/internal/infra/adapters/telegram"
	pg "telegram-gpt-relay/internal/infra/db/postgres"
	httpapi "telegram-gpt-relay/internal/infra/http"
	"telegram-gpt-relay/internal/infra/i18n"
	"telegram-gpt-relay/internal/infra/logging"
	"telegram-gpt-relay/internal/infra/memstore"
	"telegram-gpt-relay/internal/infra/metrics"
	red "telegram-gpt-relay/internal/infra/redis"
	"telegram-gpt-relay/internal/infra/sched"
	"telegram-gpt-relay/internal/infra/security"
	"telegram-gpt-relay/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

const consoleUserID int64 = 1

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Encryption ----
	cipher, err := security.NewTranscriptCipher(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}
	if cipher == nil {
		logger.Warn().Msg("security.encryption_key not set; transcripts are stored in clear")
	}

	checks := map[string]httpapi.HealthCheck{}

	// ---- Storage ----
	var (
		records repository.ChatRecordRepository
		tm      repository.TransactionManager
		locker  repository.Locker
		limiter tele.RateLimiter
		pool    *pgxpool.Pool
	)
	if cfg.Database.URL != "" {
		pool, err = pg.NewPgxPool(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping
		records = pg.NewPostgresChatRecordRepo(pool, cipher)
		tm = pg.NewTxManager(pool)
	} else {
		logger.Warn().Msg("database.url not set; chats live in memory only")
		records = memstore.NewChatRecordRepo()
		tm = memstore.TxManager{}
	}

	// ---- Redis ----
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		checks["redis"] = rc.Ping
		locker = red.NewLocker(rc)
		limiter = red.NewRateLimiter(rc)
		if pool != nil {
			records = pg.NewChatRecordCacheDecorator(records, rc, cipher, cfg.Redis.TTL, logger)
		}
	} else {
		logger.Warn().Msg("redis.url not set; using in-process locks and no rate limit")
		locker = memstore.NewLocker()
	}

	// ---- AI ----
	completions, err := newCompletionService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter")
	}
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("ai adapter ready")

	// ---- Use case / facade ----
	chatUC := usecase.NewChatUseCase(records, tm, locker, completions, usecase.ChatOptions{
		Model:             cfg.AI.DefaultModel,
		SystemPrompt:      cfg.Chat.SystemPrompt,
		Budget:            cfg.Chat.TokenBudget,
		LockTTL:           cfg.Chat.LockTTL,
		LockWait:          cfg.Chat.LockWait,
		CompletionTimeout: cfg.AI.Timeout,
	}, logger, cfg.Runtime.Dev)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	facade := application.NewBotFacade(chatUC, tr, cfg.AI.MaxContextTokens, logger)

	// ---- HTTP ----
	srv := httpapi.NewServer(&cfg.Admin, chatUC, checks, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Stats reporter ----
	reporter := sched.NewStatsReporter(time.Minute, records, pool, logger)
	go func() { _ = reporter.Run(ctx) }()

	// ---- Transport ----
	routerOpts := tele.RouterOptions{
		Limiter:            limiter,
		RateLimitPerMinute: cfg.Bot.RateLimitPerMinute,
		AdminIDs:           cfg.Bot.AdminIDs,
		Counter:            records,
	}
	transportDone := make(chan struct{})
	if cfg.Runtime.Console {
		console := tele.NewNoopBotAdapter(os.Stdout, logger)
		router := tele.NewRouter(facade, console, routerOpts, logger)
		go func() {
			defer close(transportDone)
			if err := console.RunConsole(ctx, os.Stdin, consoleUserID, router); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("console stopped")
			}
			stop()
		}()
	} else {
		bot, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		bot.SetRouter(tele.NewRouter(facade, bot, routerOpts, logger))
		go func() {
			defer close(transportDone)
			if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	// In-flight exchanges still write to the store closed by the deferred calls above.
	drain := cfg.AI.Timeout + cfg.Chat.LockWait + 5*time.Second
	select {
	case <-transportDone:
	case <-time.After(drain):
		logger.Warn().Dur("waited", drain).Msg("transport did not finish in time")
	}
}

// newCompletionService builds one metered adapter per configured provider behind a
// model router and a process-wide concurrency limit.
func newCompletionService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.CompletionService, error) {
	byProvider := map[string]adapter.CompletionService{}

	if cfg.AI.OpenAIKey != "" {
		guard := aiAdapters.NewTokenGuard(cfg.AI.MaxContextTokens)
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel, guard, logger)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		byProvider[config.ProviderOpenAI] = aiAdapters.NewMeteredAI(oa, logger)
	}
	if cfg.AI.GeminiKey != "" {
		// the reply may use whatever the budget leaves of the context window
		maxOut := cfg.AI.MaxContextTokens - cfg.Chat.TokenBudget
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, maxOut)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		byProvider[config.ProviderGemini] = aiAdapters.NewMeteredAI(ga, logger)
	}
	if cfg.AI.Provider == config.ProviderNoop {
		byProvider[config.ProviderNoop] = aiAdapters.NewMeteredAI(aiAdapters.NewNoopAIAdapter(300*time.Millisecond, logger), logger)
	}
	if byProvider[cfg.AI.Provider] == nil {
		return nil, fmt.Errorf("provider %q is not configured", cfg.AI.Provider)
	}

	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.Provider, byProvider, nil)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}
