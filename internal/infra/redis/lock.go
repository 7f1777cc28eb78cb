// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/ports/repository"
)

var _ repository.Locker = (*RedisLocker)(nil)

const lockRetryInterval = 50 * time.Millisecond

type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli}
}

// Lock waits until key is free or ctx is done. The lock expires after ttl even if never
// released.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	t := time.NewTicker(lockRetryInterval)
	defer t.Stop()
	for {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil && ctx.Err() == nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", domain.ErrLockTimeout
		case <-t.C:
		}
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only if it still holds token.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
