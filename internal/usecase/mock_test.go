//go:build !integration

// File: internal/usecase/mock_test.go
package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/adapter"
	"telegram-gpt-relay/internal/domain/ports/repository"
)

// --- Mock CompletionService

type scriptedReply struct {
	reply string
	total int
	err   error
}

// MockCompletion replays a script of replies and remembers every transcript it was sent.
type MockCompletion struct {
	mu     sync.Mutex
	script []scriptedReply
	calls  [][]adapter.Message
	// CompleteFunc overrides the script when set.
	CompleteFunc func(ctx context.Context, model string, msgs []adapter.Message) (adapter.Completion, error)
}

var _ adapter.CompletionService = (*MockCompletion)(nil)

func NewMockCompletion(script ...scriptedReply) *MockCompletion {
	return &MockCompletion{script: script}
}

func (m *MockCompletion) Name() string { return "mock" }

func (m *MockCompletion) Complete(ctx context.Context, model string, msgs []adapter.Message) (adapter.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]adapter.Message(nil), msgs...))
	fn := m.CompleteFunc
	var next scriptedReply
	if fn == nil {
		if len(m.script) == 0 {
			m.mu.Unlock()
			return adapter.Completion{}, errors.New("mock completion: script exhausted")
		}
		next, m.script = m.script[0], m.script[1:]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, model, msgs)
	}
	if next.err != nil {
		return adapter.Completion{}, next.err
	}
	return adapter.Completion{Reply: next.reply, Usage: adapter.Usage{TotalTokens: next.total}}, nil
}

func (m *MockCompletion) Calls() [][]adapter.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]adapter.Message(nil), m.calls...)
}

// --- Mock ChatRecordRepository wrapper that can fail on demand

type FailingRecordRepo struct {
	repository.ChatRecordRepository
	SaveErr   error
	AppendErr error
}

func (f *FailingRecordRepo) Save(ctx context.Context, qx any, rec *model.ChatRecord) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	return f.ChatRecordRepository.Save(ctx, qx, rec)
}

func (f *FailingRecordRepo) AppendExchange(ctx context.Context, qx any, log repository.ExchangeLog) error {
	if f.AppendErr != nil {
		return f.AppendErr
	}
	return f.ChatRecordRepository.AppendExchange(ctx, qx, log)
}

// --- Mock TxManager

type MockTxManager struct {
	mu         sync.Mutex
	calls      int
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately without a real transaction unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	hctx, runHooks := repository.WithCommitHooks(ctx)
	if err := fn(hctx, nil); err != nil {
		return err
	}
	runHooks(ctx)
	return nil
}

func (m *MockTxManager) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Logger

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
