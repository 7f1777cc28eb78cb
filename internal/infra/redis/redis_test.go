//go:build !integration

package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"telegram-gpt-relay/internal/config"
	"telegram-gpt-relay/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c := &Client{cli: redis.NewClient(&redis.Options{Addr: s.Addr()})}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewClient_Embedded(t *testing.T) {
	c, err := NewClient(context.Background(), &config.RedisConfig{URL: EmbeddedURL})
	if err != nil {
		t.Fatalf("embedded client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, err := c.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("expected v, got %q err=%v", v, err)
	}
	if _, err := c.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	c, s := newTestClient(t)
	rl := NewRateLimiter(c)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()
	key := UserCommandKey(42, "message")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: expected allowed, got ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); ok {
		t.Fatal("fourth call within the window must be denied")
	}
	if ok, _ := rl.Allow(ctx, UserCommandKey(43, "message"), 3, time.Minute); !ok {
		t.Fatal("other users have their own window")
	}

	clock = clock.Add(time.Minute)
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); !ok {
		t.Fatal("expected a fresh window once the minute rolls over")
	}

	s.FastForward(2*time.Minute + time.Second)
	if s.Exists(UserCommandKey(43, "message") + ":" + strconv.FormatInt(clock.Add(-time.Minute).UnixNano()/int64(time.Minute), 10)) {
		t.Fatal("expected the old window to expire")
	}
}

func TestRedisLocker(t *testing.T) {
	c, s := newTestClient(t)
	l := NewLocker(c)
	ctx := context.Background()

	token, err := l.Lock(ctx, "lock:chat:1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("held lock times out", func(t *testing.T) {
		wctx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
		defer cancel()
		if _, err := l.Lock(wctx, "lock:chat:1", time.Minute); !errors.Is(err, domain.ErrLockTimeout) {
			t.Fatalf("expected ErrLockTimeout, got %v", err)
		}
	})

	t.Run("stale token does not release", func(t *testing.T) {
		if err := l.Unlock(ctx, "lock:chat:1", "not-mine"); err != nil {
			t.Fatal(err)
		}
		if !s.Exists("lock:chat:1") {
			t.Fatal("lock released by a foreign token")
		}
	})

	t.Run("waiter acquires after unlock", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			tok, err := l.Lock(wctx, "lock:chat:1", time.Minute)
			if err == nil {
				err = l.Unlock(ctx, "lock:chat:1", tok)
			}
			done <- err
		}()
		time.Sleep(80 * time.Millisecond)
		if err := l.Unlock(ctx, "lock:chat:1", token); err != nil {
			t.Fatal(err)
		}
		if err := <-done; err != nil {
			t.Fatalf("waiter: %v", err)
		}
	})

	t.Run("ttl expiry frees the key", func(t *testing.T) {
		if _, err := l.Lock(ctx, "lock:chat:2", time.Second); err != nil {
			t.Fatal(err)
		}
		s.FastForward(2 * time.Second)
		wctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if _, err := l.Lock(wctx, "lock:chat:2", time.Second); err != nil {
			t.Fatalf("expected expired lock to be free, got %v", err)
		}
	})
}
