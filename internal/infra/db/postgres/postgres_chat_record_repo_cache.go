package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/repository"
	"telegram-gpt-relay/internal/infra/metrics"
	red "telegram-gpt-relay/internal/infra/redis"
	"telegram-gpt-relay/internal/infra/security"
)

var _ repository.ChatRecordRepository = (*chatRecordCacheDecorator)(nil)

// chatRecordCacheDecorator is a read-through Redis cache in front of the record store.
// Cached values are sealed with the same cipher as the database column.
type chatRecordCacheDecorator struct {
	inner  repository.ChatRecordRepository
	cache  red.RedisClient
	cipher *security.TranscriptCipher
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewChatRecordCacheDecorator(inner repository.ChatRecordRepository, cache red.RedisClient, cipher *security.TranscriptCipher, ttl time.Duration, logger *zerolog.Logger) repository.ChatRecordRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "ChatRecordCache").Logger()
	return &chatRecordCacheDecorator{inner: inner, cache: cache, cipher: cipher, ttl: ttl, log: &l}
}

func recordKey(userID int64) string { return fmt.Sprintf("chat_record:%d", userID) }

// Load serves from cache outside transactions only.
func (d *chatRecordCacheDecorator) Load(ctx context.Context, qx any, userID int64) (*model.ChatRecord, error) {
	if qx != nil {
		metrics.IncCacheRequest("chat_record", "bypass")
		return d.inner.Load(ctx, qx, userID)
	}
	key := recordKey(userID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		if rec, derr := d.decode(val); derr == nil {
			metrics.IncCacheRequest("chat_record", "hit")
			return rec, nil
		}
		_ = d.cache.Del(ctx, key)
	} else if !errors.Is(err, domain.ErrNotFound) {
		d.log.Warn().Err(err).Msg("cache get")
	}

	metrics.IncCacheRequest("chat_record", "miss")
	rec, err := d.inner.Load(ctx, qx, userID)
	if err != nil {
		return nil, err
	}
	d.store(ctx, rec)
	return rec, nil
}

// Save invalidates first. Records written outside a transaction are cached right away.
// Transactional writes invalidate again once the transaction commits, which drops any entry
// a concurrent miss filled from the pre-commit row.
func (d *chatRecordCacheDecorator) Save(ctx context.Context, qx any, rec *model.ChatRecord) error {
	d.invalidate(ctx, rec.UserID)
	if err := d.inner.Save(ctx, qx, rec); err != nil {
		return err
	}
	if qx == nil {
		d.store(ctx, rec)
		return nil
	}
	userID := rec.UserID
	repository.AfterCommit(ctx, func(ctx context.Context) { d.invalidate(ctx, userID) })
	return nil
}

func (d *chatRecordCacheDecorator) invalidate(ctx context.Context, userID int64) {
	if err := d.cache.Del(ctx, recordKey(userID)); err != nil {
		d.log.Warn().Err(err).Int64("tg_id", userID).Msg("cache invalidate")
	}
}

func (d *chatRecordCacheDecorator) AppendExchange(ctx context.Context, qx any, l repository.ExchangeLog) error {
	return d.inner.AppendExchange(ctx, qx, l)
}

func (d *chatRecordCacheDecorator) CountActive(ctx context.Context, qx any) (int, error) {
	return d.inner.CountActive(ctx, qx)
}

func (d *chatRecordCacheDecorator) store(ctx context.Context, rec *model.ChatRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	sealed, err := d.cipher.Seal(raw)
	if err != nil {
		d.log.Warn().Err(err).Msg("cache seal")
		return
	}
	if err := d.cache.Set(ctx, recordKey(rec.UserID), sealed, d.ttl); err != nil {
		d.log.Warn().Err(err).Msg("cache set")
	}
}

func (d *chatRecordCacheDecorator) decode(val string) (*model.ChatRecord, error) {
	raw, err := d.cipher.Open(val)
	if err != nil {
		return nil, err
	}
	var rec model.ChatRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
