package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/domain/ports/repository"
)

var _ repository.Locker = (*Locker)(nil)

// Locker is a per-key mutex. Each key owns a one-slot channel; holding the slot is
// holding the lock. The ttl is ignored: in-process holders cannot die silently.
type Locker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	holders map[string]string
}

func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{}), holders: make(map[string]string)}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s := l.slot(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return "", domain.ErrLockTimeout
	}
	token := uuid.NewString()
	l.mu.Lock()
	l.holders[key] = token
	l.mu.Unlock()
	return token, nil
}

// Unlock releases the key only if token still owns it.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	if l.holders[key] != token {
		l.mu.Unlock()
		return nil
	}
	delete(l.holders, key)
	s := l.slots[key]
	l.mu.Unlock()
	<-s
	return nil
}
