package reconcile

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebatch-platform/pkg/utils"
)

// Limiter bounds concurrent syncs per key.
type Limiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLimiter is a Limiter shared by every API instance.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// NewRedisLimiter allows limit concurrent holders per key. ttl bounds how
// long a slot survives a crashed holder.
func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context, key string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, key)
}

func syncKey(tenantID, batchID string) string {
	return "sync:" + tenantID + ":" + batchID
}
