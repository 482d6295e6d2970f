package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process Locker for single-replica deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]localEntry
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

func NewLocal() *Local {
	return &Local{held: map[string]localEntry{}}
}

func (l *Local) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrNotAcquired
	}

	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, nil
}

type localLock struct {
	owner *Local
	key   string
	token string
}

func (l *localLock) Release(ctx context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	entry, ok := l.owner.held[l.key]
	if !ok || entry.token != l.token {
		return ErrNotHeld
	}
	delete(l.owner.held, l.key)
	return nil
}
