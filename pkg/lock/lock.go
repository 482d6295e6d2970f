// Package lock provides keyed mutual exclusion with a redis or in-process backend.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired is returned when a lock is held by someone else.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that expired or was taken over.
	ErrNotHeld = errors.New("lock not held")
)

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire takes key for ttl or fails immediately with ErrNotAcquired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// TryAcquire retries Acquire with capped exponential backoff until timeout.
func TryAcquire(ctx context.Context, locker Locker, key string, ttl, timeout time.Duration) (Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		l, err := locker.Acquire(ctx, key, ttl)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

// WithLock runs fn while holding key. It returns ErrNotAcquired without running fn
// when the key is taken.
func WithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release(context.WithoutCancel(ctx)) }()

	return fn(ctx)
}

// WithLockWait is WithLock that waits up to timeout for the key.
func WithLockWait(ctx context.Context, locker Locker, key string, ttl, timeout time.Duration, fn func(ctx context.Context) error) error {
	l, err := TryAcquire(ctx, locker, key, ttl, timeout)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release(context.WithoutCancel(ctx)) }()

	return fn(ctx)
}
