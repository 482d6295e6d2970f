package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/lock"
)

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Lock is a token-owned key. Only the holder of the token can release or extend it.
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// Locker implements lock.Locker with SET NX.
type Locker struct {
	client    *Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "clover:lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lock.ErrNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)
	return &Lock{
		client: l.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

func (lk *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lk.client.rdb, []string{lk.key}, lk.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return lock.ErrNotHeld
	}

	lk.client.logger.WithContext(ctx).Debugf("Released lock: %s", lk.key)
	return nil
}

// Extend pushes the expiry out while the caller still owns the lock.
func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lk.client.rdb, []string{lk.key}, lk.value, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if result == 0 {
		return lock.ErrNotHeld
	}

	lk.ttl = ttl
	return nil
}
