//go:build !integration

package model

import (
	"errors"
	"reflect"
	"testing"

	"telegram-gpt-relay/internal/domain"
)

func assertAlternation(t *testing.T, transcript []Turn) {
	t.Helper()
	if len(transcript) == 0 || transcript[0].Role != RoleSystem {
		t.Fatalf("transcript must start with the system turn, got %+v", transcript)
	}
	for i := 1; i < len(transcript); i++ {
		want := RoleUser
		if i%2 == 0 {
			want = RoleAssistant
		}
		if transcript[i].Role != want {
			t.Fatalf("turn %d: expected role %s, got %s", i, want, transcript[i].Role)
		}
	}
}

// --- TokenLedger ---

func TestTokenLedger_RecordExchangeCost(t *testing.T) {
	t.Run("first call records the raw total", func(t *testing.T) {
		var l TokenLedger
		if got := l.RecordExchangeCost(120); got != 120 {
			t.Fatalf("expected cost 120, got %d", got)
		}
		if l.TotalTokens != 120 || l.Sum() != 120 {
			t.Fatalf("expected total 120, got total=%d sum=%d", l.TotalTokens, l.Sum())
		}
	})

	t.Run("later calls record the marginal delta", func(t *testing.T) {
		var l TokenLedger
		l.RecordExchangeCost(100)
		l.RecordExchangeCost(250)
		if got := l.RecordExchangeCost(400); got != 150 {
			t.Fatalf("expected marginal cost 150, got %d", got)
		}
		if !reflect.DeepEqual(l.Costs, []int{100, 150, 150}) {
			t.Fatalf("unexpected cost history %v", l.Costs)
		}
		if l.Sum() != l.TotalTokens {
			t.Fatalf("sum %d != total %d", l.Sum(), l.TotalTokens)
		}
	})

	t.Run("non-monotonic totals pass through as negative cost", func(t *testing.T) {
		var l TokenLedger
		l.RecordExchangeCost(500)
		if got := l.RecordExchangeCost(300); got != -200 {
			t.Fatalf("expected -200, got %d", got)
		}
		if l.Sum() != 300 || l.TotalTokens != 300 {
			t.Fatalf("expected sum and total 300, got sum=%d total=%d", l.Sum(), l.TotalTokens)
		}
	})
}

// --- Pruner ---

func buildTranscript(exchanges int) []Turn {
	turns := []Turn{SystemTurn(DefaultSystemPrompt)}
	for i := 0; i < exchanges; i++ {
		turns = append(turns, UserTurn(string(rune('a'+i))), AssistantTurn(string(rune('A'+i))))
	}
	return turns
}

func TestPruneIfNeeded(t *testing.T) {
	t.Run("evicts oldest exchanges first", func(t *testing.T) {
		transcript := buildTranscript(5)
		costs := []int{500, 500, 500, 2500, 500}

		turns, left, evicted := PruneIfNeeded(transcript, costs, TokenBudget)

		if !reflect.DeepEqual(left, []int{500, 2500, 500}) {
			t.Fatalf("expected [500 2500 500], got %v", left)
		}
		if evicted != 2 {
			t.Fatalf("expected 2 evictions, got %d", evicted)
		}
		if len(turns) != 7 {
			t.Fatalf("expected 7 turns, got %d", len(turns))
		}
		if turns[1].Content != "c" || turns[2].Content != "C" {
			t.Fatalf("expected third exchange to become the oldest, got %+v", turns[1:3])
		}
		assertAlternation(t, turns)
		if !reflect.DeepEqual(costs, []int{500, 500, 500, 2500, 500}) {
			t.Fatalf("input costs were mutated: %v", costs)
		}
		if len(transcript) != 11 {
			t.Fatalf("input transcript was mutated")
		}
	})

	t.Run("within budget is untouched", func(t *testing.T) {
		transcript := buildTranscript(2)
		turns, left, evicted := PruneIfNeeded(transcript, []int{100, 200}, TokenBudget)
		if evicted != 0 || len(turns) != 5 || !reflect.DeepEqual(left, []int{100, 200}) {
			t.Fatalf("unexpected pruning: evicted=%d turns=%d costs=%v", evicted, len(turns), left)
		}
	})

	t.Run("single oversized exchange terminates", func(t *testing.T) {
		transcript := buildTranscript(2)
		turns, left, evicted := PruneIfNeeded(transcript, []int{300, 4000}, TokenBudget)
		if evicted != 1 {
			t.Fatalf("expected 1 eviction, got %d", evicted)
		}
		if !reflect.DeepEqual(left, []int{4000}) {
			t.Fatalf("expected [4000], got %v", left)
		}
		if len(turns) != 3 || turns[0].Role != RoleSystem {
			t.Fatalf("expected system turn plus newest exchange, got %+v", turns)
		}
	})

	t.Run("system turn is never evicted", func(t *testing.T) {
		turns, _, _ := PruneIfNeeded(buildTranscript(4), []int{2000, 2000, 2000, 2000}, TokenBudget)
		if turns[0] != SystemTurn(DefaultSystemPrompt) {
			t.Fatalf("system turn lost: %+v", turns[0])
		}
	})
}

// --- ChatSession ---

func TestChatSession_Exchanges(t *testing.T) {
	s := NewChatSession(42, "gpt-3.5-turbo", "", 0)
	if s.ID == "" {
		t.Fatal("expected a session id")
	}
	if s.Budget != TokenBudget {
		t.Fatalf("expected default budget %d, got %d", TokenBudget, s.Budget)
	}

	totals := []int{500, 1000, 1500, 4000, 4000}
	for i, total := range totals {
		if err := s.AddUserTurn("question"); err != nil {
			t.Fatalf("exchange %d: AddUserTurn: %v", i, err)
		}
		if _, err := s.RecordAssistantTurn("answer", total); err != nil {
			t.Fatalf("exchange %d: RecordAssistantTurn: %v", i, err)
		}
		assertAlternation(t, s.Transcript)
		if s.Ledger.Sum() != s.TotalTokens() {
			t.Fatalf("exchange %d: sum %d != total %d", i, s.Ledger.Sum(), s.TotalTokens())
		}
		if s.Ledger.Sum() > TokenBudget && s.Exchanges() != 1 {
			t.Fatalf("exchange %d: budget exceeded with %d exchanges", i, s.Exchanges())
		}
	}
	if !reflect.DeepEqual(s.Ledger.Costs, []int{500, 2500, 500}) {
		t.Fatalf("expected [500 2500 500], got %v", s.Ledger.Costs)
	}
	if s.TotalTokens() != 3500 {
		t.Fatalf("expected total 3500, got %d", s.TotalTokens())
	}
}

func TestChatSession_TurnOrder(t *testing.T) {
	s := NewChatSession(1, "m", "", 0)

	if _, err := s.RecordAssistantTurn("orphan", 10); !errors.Is(err, domain.ErrTurnOutOfOrder) {
		t.Fatalf("expected ErrTurnOutOfOrder, got %v", err)
	}
	if err := s.AddUserTurn("hi"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUserTurn("hi again"); !errors.Is(err, domain.ErrTurnOutOfOrder) {
		t.Fatalf("expected ErrTurnOutOfOrder, got %v", err)
	}
}

func TestChatSession_StartIsIdempotent(t *testing.T) {
	s := NewChatSession(1, "m", "Be brief.", 0)
	_ = s.AddUserTurn("hi")
	_, _ = s.RecordAssistantTurn("hello", 50)

	s.Start()
	once := s.Clone()
	s.Start()

	want := []Turn{SystemTurn("Be brief.")}
	if !reflect.DeepEqual(s.Transcript, want) || !reflect.DeepEqual(once.Transcript, want) {
		t.Fatalf("expected only the system turn, got %+v", s.Transcript)
	}
	if len(s.Ledger.Costs) != 0 || s.TotalTokens() != 0 {
		t.Fatalf("expected empty ledger, got %+v", s.Ledger)
	}
}

func TestChatSession_CloneIsDeep(t *testing.T) {
	s := NewChatSession(1, "m", "", 0)
	draft := s.Clone()
	_ = draft.AddUserTurn("draft only")

	if len(s.Transcript) != 1 {
		t.Fatalf("original mutated through clone: %+v", s.Transcript)
	}
}

// --- Lifecycle ---

func TestTransition(t *testing.T) {
	cases := []struct {
		from    ChatState
		ev      ChatEvent
		want    ChatState
		wantErr error
	}{
		{NoActiveChat, EventStart, ActiveChat, nil},
		{NoActiveChat, EventEnd, NoActiveChat, nil},
		{NoActiveChat, EventMessage, NoActiveChat, domain.ErrNoActiveChat},
		{NoActiveChat, EventUsage, NoActiveChat, domain.ErrNoActiveChat},
		{ActiveChat, EventStart, ActiveChat, domain.ErrActiveChatExists},
		{ActiveChat, EventMessage, ActiveChat, nil},
		{ActiveChat, EventUsage, ActiveChat, nil},
		{ActiveChat, EventEnd, NoActiveChat, nil},
		{ActiveChat, ChatEvent("bogus"), ActiveChat, domain.ErrUnknownEvent},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			got, err := Transition(tc.from, tc.ev)
			if got != tc.want {
				t.Errorf("expected state %s, got %s", tc.want, got)
			}
			if tc.wantErr == nil && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestChatRecord_Apply(t *testing.T) {
	cfg := SessionConfig{Model: "gpt-3.5-turbo"}

	t.Run("start opens a session", func(t *testing.T) {
		r := NewChatRecord(7)
		if err := r.Apply(EventStart, cfg); err != nil {
			t.Fatal(err)
		}
		if !r.Active() || len(r.Session.Transcript) != 1 {
			t.Fatalf("expected fresh active session, got %+v", r)
		}
	})

	t.Run("start while active keeps the transcript", func(t *testing.T) {
		r := NewChatRecord(7)
		_ = r.Apply(EventStart, cfg)
		_ = r.Session.AddUserTurn("hi")
		_, _ = r.Session.RecordAssistantTurn("hello", 30)
		before := r.Session.Clone()

		err := r.Apply(EventStart, cfg)
		if !errors.Is(err, domain.ErrActiveChatExists) {
			t.Fatalf("expected ErrActiveChatExists, got %v", err)
		}
		if !reflect.DeepEqual(before.Transcript, r.Session.Transcript) ||
			!reflect.DeepEqual(before.Ledger, r.Session.Ledger) {
			t.Fatal("re-entry must not reset the session")
		}
	})

	t.Run("end drops the session and is idempotent", func(t *testing.T) {
		r := NewChatRecord(7)
		_ = r.Apply(EventStart, cfg)
		if err := r.Apply(EventEnd, cfg); err != nil {
			t.Fatal(err)
		}
		if r.Session != nil || r.State != NoActiveChat {
			t.Fatalf("expected no session, got %+v", r)
		}
		if err := r.Apply(EventEnd, cfg); err != nil {
			t.Fatalf("second end must be a no-op, got %v", err)
		}
		if err := r.Apply(EventUsage, cfg); !errors.Is(err, domain.ErrNoActiveChat) {
			t.Fatalf("expected ErrNoActiveChat after end, got %v", err)
		}
	})
}
