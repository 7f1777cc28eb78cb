// File: internal/infra/db/postgres/postgres_chat_record_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/repository"
	"telegram-gpt-relay/internal/infra/security"
)

var _ repository.ChatRecordRepository = (*ChatRecordRepo)(nil)

// ChatRecordRepo stores one row per user in chat_records. The session, transcript included,
// is kept as JSON and sealed with the transcript cipher when a key is configured.
type ChatRecordRepo struct {
	pool   *pgxpool.Pool
	cipher *security.TranscriptCipher
}

func NewPostgresChatRecordRepo(pool *pgxpool.Pool, cipher *security.TranscriptCipher) *ChatRecordRepo {
	return &ChatRecordRepo{pool: pool, cipher: cipher}
}

func (r *ChatRecordRepo) Load(ctx context.Context, qx any, userID int64) (*model.ChatRecord, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT state, session, updated_at FROM chat_records WHERE user_id = $1;`
	var (
		state     string
		payload   *string
		updatedAt time.Time
	)
	if err := ex.QueryRow(ctx, q, userID).Scan(&state, &payload, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NewChatRecord(userID), nil
		}
		return nil, fmt.Errorf("load chat record: %w", err)
	}

	rec := &model.ChatRecord{UserID: userID, State: model.ChatState(state), UpdatedAt: updatedAt}
	if payload != nil && *payload != "" {
		raw, err := r.cipher.Open(*payload)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		var s model.ChatSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		rec.Session = &s
	}
	if rec.State == model.ActiveChat && rec.Session == nil {
		// a row without a session cannot be active
		rec.State = model.NoActiveChat
	}
	return rec, nil
}

func (r *ChatRecordRepo) Save(ctx context.Context, qx any, rec *model.ChatRecord) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	var (
		sessionID *string
		payload   *string
	)
	if rec.Session != nil {
		raw, err := json.Marshal(rec.Session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		sealed, err := r.cipher.Seal(raw)
		if err != nil {
			return fmt.Errorf("seal session: %w", err)
		}
		sessionID, payload = &rec.Session.ID, &sealed
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	const q = `
INSERT INTO chat_records (user_id, state, session_id, session, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (user_id) DO UPDATE SET
  state = EXCLUDED.state,
  session_id = EXCLUDED.session_id,
  session = EXCLUDED.session,
  updated_at = EXCLUDED.updated_at;`
	if _, err := ex.Exec(ctx, q, rec.UserID, string(rec.State), sessionID, payload, updatedAt); err != nil {
		return fmt.Errorf("save chat record: %w", err)
	}
	return nil
}

func (r *ChatRecordRepo) AppendExchange(ctx context.Context, qx any, l repository.ExchangeLog) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO chat_exchanges (session_id, user_id, cost, total_tokens, evicted, created_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()));`
	var createdAt *time.Time
	if !l.CreatedAt.IsZero() {
		createdAt = &l.CreatedAt
	}
	if _, err := ex.Exec(ctx, q, l.SessionID, l.UserID, l.Cost, l.TotalTokens, l.Evicted, createdAt); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

func (r *ChatRecordRepo) CountActive(ctx context.Context, qx any) (int, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := ex.QueryRow(ctx, `SELECT COUNT(*) FROM chat_records WHERE state = $1;`, string(model.ActiveChat)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

// ExchangesBySession lists the audit rows of a session, oldest first.
func (r *ChatRecordRepo) ExchangesBySession(ctx context.Context, qx any, sessionID string) ([]repository.ExchangeLog, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT session_id, user_id, cost, total_tokens, evicted, created_at
FROM chat_exchanges WHERE session_id = $1 ORDER BY id ASC;`
	rows, err := ex.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()
	var out []repository.ExchangeLog
	for rows.Next() {
		var l repository.ExchangeLog
		if err := rows.Scan(&l.SessionID, &l.UserID, &l.Cost, &l.TotalTokens, &l.Evicted, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
