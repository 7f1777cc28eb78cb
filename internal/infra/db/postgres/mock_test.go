//go:build !integration

package postgres

import (
	"context"
	"time"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/repository"
	red "telegram-gpt-relay/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerRecordRepo mocks the database repository that the record decorator wraps.
type mockInnerRecordRepo struct {
	LoadFunc  func(ctx context.Context, qx any, userID int64) (*model.ChatRecord, error)
	SaveFunc  func(ctx context.Context, qx any, rec *model.ChatRecord) error
	loadCalls int
}

func (m *mockInnerRecordRepo) Load(ctx context.Context, qx any, userID int64) (*model.ChatRecord, error) {
	m.loadCalls++
	return m.LoadFunc(ctx, qx, userID)
}
func (m *mockInnerRecordRepo) Save(ctx context.Context, qx any, rec *model.ChatRecord) error {
	return m.SaveFunc(ctx, qx, rec)
}
func (m *mockInnerRecordRepo) AppendExchange(context.Context, any, repository.ExchangeLog) error {
	return nil
}
func (m *mockInnerRecordRepo) CountActive(context.Context, any) (int, error) { return 0, nil }

// mockRedisClient is a map-backed stand-in for our Redis client wrapper.
type mockRedisClient struct {
	data    map[string]string
	deleted []string
	GetErr  error
}

var _ red.RedisClient = &mockRedisClient{}

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Get(_ context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}
func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	}
	return nil
}
func (m *mockRedisClient) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}
func (m *mockRedisClient) Ping(context.Context) error { return nil }
func (m *mockRedisClient) Incr(context.Context, string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(context.Context, string, time.Duration) error { return nil }
func (m *mockRedisClient) Close() error { return nil }
