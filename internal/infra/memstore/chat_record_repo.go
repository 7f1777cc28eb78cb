// Package memstore keeps chat records in process memory. Used in dev mode and tests.
package memstore

import (
	"context"
	"sync"

	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/repository"
)

var _ repository.ChatRecordRepository = (*ChatRecordRepo)(nil)

type ChatRecordRepo struct {
	mu        sync.RWMutex
	records   map[int64]*model.ChatRecord
	exchanges []repository.ExchangeLog
}

func NewChatRecordRepo() *ChatRecordRepo {
	return &ChatRecordRepo{records: make(map[int64]*model.ChatRecord)}
}

// Load returns a copy so callers never alias stored state.
func (r *ChatRecordRepo) Load(ctx context.Context, qx any, userID int64) (*model.ChatRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[userID]; ok {
		return rec.Clone(), nil
	}
	return model.NewChatRecord(userID), nil
}

func (r *ChatRecordRepo) Save(ctx context.Context, qx any, rec *model.ChatRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.UserID] = rec.Clone()
	return nil
}

func (r *ChatRecordRepo) AppendExchange(ctx context.Context, qx any, log repository.ExchangeLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, log)
	return nil
}

func (r *ChatRecordRepo) CountActive(ctx context.Context, qx any) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Active() {
			n++
		}
	}
	return n, nil
}

// Exchanges returns a copy of the exchange audit log.
func (r *ChatRecordRepo) Exchanges() []repository.ExchangeLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]repository.ExchangeLog(nil), r.exchanges...)
}
