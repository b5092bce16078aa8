package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants a short exclusive lease on a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker implements Locker with SET NX.  Leases are never released
// early; they lapse after ttl so a crashed holder cannot wedge the job.
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
	owner  string
}

func NewRedisLocker(rdb redis.Cmdable, prefix string) *RedisLocker {
	host, _ := os.Hostname()
	return &RedisLocker{rdb: rdb, prefix: prefix, owner: fmt.Sprintf("%s:%d", host, os.Getpid())}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return ok, nil
}
