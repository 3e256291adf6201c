// Package redislock provides a per-slot distributed lock used to narrow
// the booking commit critical section across process instances.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired means another process holds the slot lock.
var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker guards a critical section keyed by slot ID.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker using a per-slot Redis key with the
// given TTL. The lock value is a random token so only the holder can
// release it.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{client: client, ttl: ttl}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error {
	key := "lock:slot:" + slotID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

type noopLocker struct{}

// NewNoopLocker returns a Locker that runs the critical section without
// distributed coordination. Used when Redis is not configured; the SQL
// backend's conditional update still guarantees single booking.
func NewNoopLocker() Locker {
	return noopLocker{}
}

func (noopLocker) WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
