package repository

import (
	"context"
	"time"

	"telegram-gpt-relay/internal/domain/model"
)

// ExchangeLog is the audit row written for every completed exchange.
type ExchangeLog struct {
	SessionID   string
	UserID      int64
	Cost        int
	TotalTokens int
	Evicted     int
	CreatedAt   time.Time
}

// ChatRecordRepository persists the per-user lifecycle record and its session.
type ChatRecordRepository interface {
	// Load returns the user's record, or a fresh NoActiveChat record when none is stored.
	Load(ctx context.Context, qx any, userID int64) (*model.ChatRecord, error)
	Save(ctx context.Context, qx any, rec *model.ChatRecord) error
	AppendExchange(ctx context.Context, qx any, log ExchangeLog) error
	// CountActive returns the number of users currently in ActiveChat.
	CountActive(ctx context.Context, qx any) (int, error)
}
