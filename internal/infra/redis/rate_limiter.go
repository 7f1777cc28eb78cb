package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits per key in fixed windows. The window index is part of the Redis
// key, so a counter whose EXPIRE was lost stops applying once the next window begins.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow reports whether one more hit on key fits within limit for the current window.
// A non-positive limit disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	slot := fmt.Sprintf("%s:%d", key, r.now().UnixNano()/int64(window))

	count, err := r.client.Incr(ctx, slot)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		// the slot outlives its window by one window so late readers still see it
		if err := r.client.Expire(ctx, slot, 2*window); err != nil {
			return false, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}
	return count <= int64(limit), nil
}

// UserCommandKey scopes a rate limit bucket to one Telegram user.
func UserCommandKey(userID int64, bucket string) string {
	return fmt.Sprintf("rate_limit:%d:%s", userID, bucket)
}
