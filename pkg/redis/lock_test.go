package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/lock"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := NewClient(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	return NewLocker(client, "test:"), server
}

func TestLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("should acquire and release", func(t *testing.T) {
		locker, server := newTestLocker(t)

		l, err := locker.Acquire(ctx, "sweep:expired-tenders", time.Minute)
		require.NoError(t, err)
		assert.True(t, server.Exists("test:sweep:expired-tenders"))

		_, err = locker.Acquire(ctx, "sweep:expired-tenders", time.Minute)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)

		require.NoError(t, l.Release(ctx))
		assert.False(t, server.Exists("test:sweep:expired-tenders"))
	})

	t.Run("should not release a lock taken over after expiry", func(t *testing.T) {
		locker, server := newTestLocker(t)

		stale, err := locker.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		server.FastForward(2 * time.Second)

		_, err = locker.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Release(ctx), lock.ErrNotHeld)
		assert.True(t, server.Exists("test:k"))
	})

	t.Run("should extend a held lock", func(t *testing.T) {
		locker, server := newTestLocker(t)

		l, err := locker.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)

		require.NoError(t, l.(*Lock).Extend(ctx, time.Minute))
		assert.Greater(t, server.TTL("test:k"), 30*time.Second)
	})

	t.Run("should serialize through WithLock", func(t *testing.T) {
		locker, _ := newTestLocker(t)

		calls := 0
		err := lock.WithLock(ctx, locker, "k", time.Minute, func(ctx context.Context) error {
			calls++
			return lock.WithLock(ctx, locker, "k", time.Minute, func(ctx context.Context) error {
				calls++
				return nil
			})
		})
		assert.ErrorIs(t, err, lock.ErrNotAcquired)
		assert.Equal(t, 1, calls)
	})
}
