package model

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-gpt-relay/internal/domain"
)

// Exchange summarizes the bookkeeping of one completed user/assistant pair.
type Exchange struct {
	Cost        int
	TotalTokens int
	Evicted     int
}

// ChatSession is the aggregate root for one user's running conversation: the transcript
// sent to the model plus the token ledger that bounds it.
type ChatSession struct {
	ID           string      `json:"id"`
	UserID       int64       `json:"user_id"`
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt"`
	Budget       int         `json:"budget"`
	Transcript   []Turn      `json:"transcript"`
	Ledger       TokenLedger `json:"ledger"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewChatSession builds a started session. An empty systemPrompt falls back to
// DefaultSystemPrompt and a non-positive budget to TokenBudget.
func NewChatSession(userID int64, model, systemPrompt string, budget int) *ChatSession {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if budget <= 0 {
		budget = TokenBudget
	}
	s := &ChatSession{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Model:        model,
		SystemPrompt: systemPrompt,
		Budget:       budget,
		CreatedAt:    time.Now(),
	}
	s.Start()
	return s
}

// Start resets the transcript to the system turn and clears the ledger.
// Calling it again yields the same state.
func (s *ChatSession) Start() {
	s.Transcript = []Turn{SystemTurn(s.SystemPrompt)}
	s.Ledger.Reset()
	s.UpdatedAt = time.Now()
}

// AddUserTurn appends a user turn. Cost is only known once the reply arrives.
func (s *ChatSession) AddUserTurn(text string) error {
	if s.awaitingReply() {
		return fmt.Errorf("add user turn: %w", domain.ErrTurnOutOfOrder)
	}
	s.Transcript = append(s.Transcript, UserTurn(text))
	s.UpdatedAt = time.Now()
	return nil
}

// RecordAssistantTurn closes the pending exchange, books its cost and prunes the
// oldest exchanges when the budget is exceeded.
func (s *ChatSession) RecordAssistantTurn(reply string, totalTokensAfterReply int) (Exchange, error) {
	if !s.awaitingReply() {
		return Exchange{}, fmt.Errorf("record assistant turn: %w", domain.ErrTurnOutOfOrder)
	}
	s.Transcript = append(s.Transcript, AssistantTurn(reply))
	cost := s.Ledger.RecordExchangeCost(totalTokensAfterReply)

	turns, costs, evicted := PruneIfNeeded(s.Transcript, s.Ledger.Costs, s.Budget)
	s.Transcript = turns
	s.Ledger.Costs = costs
	s.Ledger.TotalTokens = sumCosts(costs)
	s.UpdatedAt = time.Now()

	return Exchange{Cost: cost, TotalTokens: s.Ledger.TotalTokens, Evicted: evicted}, nil
}

// End discards the transcript and the ledger.
func (s *ChatSession) End() {
	s.Transcript = nil
	s.Ledger = TokenLedger{}
	s.UpdatedAt = time.Now()
}

func (s *ChatSession) TotalTokens() int { return s.Ledger.TotalTokens }

// Exchanges returns the number of completed exchanges still in the transcript.
func (s *ChatSession) Exchanges() int { return len(s.Ledger.Costs) }

// Clone returns a deep copy so a caller can work on a draft and drop it on failure.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Transcript = append([]Turn(nil), s.Transcript...)
	cp.Ledger.Costs = append([]int(nil), s.Ledger.Costs...)
	return &cp
}

// awaitingReply reports whether the last turn is a user turn without an answer.
func (s *ChatSession) awaitingReply() bool {
	n := len(s.Transcript)
	return n > 1 && s.Transcript[n-1].Role == RoleUser
}
