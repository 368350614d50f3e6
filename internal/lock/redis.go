package lock

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Compile-time interface satisfaction check.
var _ Locker = (*RedisLocker)(nil)

// RedisLocker keeps the token under a key that expires after the staleness
// window, so an abandoned lock clears itself.
type RedisLocker struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis returns a RedisLocker. A zero ttl uses DefaultStaleAfter.
func NewRedis(client goredis.Cmdable, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultStaleAfter
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, now: time.Now}
}

// Acquire attempts SET NX with the lock TTL.
func (l *RedisLocker) Acquire(ctx context.Context) (bool, error) {
	data, err := NewToken(l.now()).marshal()
	if err != nil {
		return false, err
	}
	ok, err := l.client.SetNX(ctx, l.key, data, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the lock key.
func (l *RedisLocker) Release(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}
