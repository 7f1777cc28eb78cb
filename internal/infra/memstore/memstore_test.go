//go:build !integration

package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/model"
	"telegram-gpt-relay/internal/domain/ports/repository"
)

func TestChatRecordRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRecordRepo()

	t.Run("unknown user loads a fresh record", func(t *testing.T) {
		rec, err := repo.Load(ctx, nil, 5)
		if err != nil {
			t.Fatal(err)
		}
		if rec.State != model.NoActiveChat || rec.Session != nil || rec.UserID != 5 {
			t.Fatalf("unexpected record %+v", rec)
		}
	})

	t.Run("save stores a copy", func(t *testing.T) {
		rec := model.NewChatRecord(9)
		_ = rec.Apply(model.EventStart, model.SessionConfig{Model: "m"})
		if err := repo.Save(ctx, nil, rec); err != nil {
			t.Fatal(err)
		}
		_ = rec.Session.AddUserTurn("not saved")

		got, _ := repo.Load(ctx, nil, 9)
		if len(got.Session.Transcript) != 1 {
			t.Fatalf("stored record aliased caller state: %+v", got.Session.Transcript)
		}
		n, _ := repo.CountActive(ctx, nil)
		if n != 1 {
			t.Fatalf("expected 1 active, got %d", n)
		}
	})

	t.Run("exchanges are appended", func(t *testing.T) {
		_ = repo.AppendExchange(ctx, nil, repository.ExchangeLog{UserID: 9, Cost: 10})
		if len(repo.Exchanges()) != 1 {
			t.Fatalf("expected 1 exchange, got %d", len(repo.Exchanges()))
		}
	})
}

func TestLocker_SerializesPerKey(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := l.Lock(ctx, "chat:1", time.Minute)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			_ = l.Unlock(ctx, "chat:1", tok)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
}

func TestLocker_DifferentKeysAndTimeout(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	tok, _ := l.Lock(ctx, "chat:1", time.Minute)
	if _, err := l.Lock(ctx, "chat:2", time.Minute); err != nil {
		t.Fatalf("other key must not block: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, "chat:1", time.Minute); !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	_ = l.Unlock(ctx, "chat:1", "stale-token")
	short2, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	if _, err := l.Lock(short2, "chat:1", time.Minute); !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatal("stale token must not release the lock")
	}

	_ = l.Unlock(ctx, "chat:1", tok)
	if _, err := l.Lock(ctx, "chat:1", time.Minute); err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
}
