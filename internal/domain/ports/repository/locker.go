package repository

import (
	"context"
	"time"
)

// Locker serializes work per key. Lock blocks until the key is free or ctx is done and
// returns a token that must be passed back to Unlock.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}
