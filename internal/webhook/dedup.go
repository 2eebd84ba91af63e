package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebatch-platform/pkg/utils"
)

// DeliveryLog remembers deliveries that were fully processed.
type DeliveryLog interface {
	Seen(ctx context.Context, body []byte) (bool, error)
	Record(ctx context.Context, body []byte) error
}

// RedisDeliveryLog keys deliveries by the SHA-256 of the raw body.
// Markers expire after TTL, normally the signature tolerance.
type RedisDeliveryLog struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeliveryLog(rdb *redis.Client, ttl time.Duration) *RedisDeliveryLog {
	if ttl <= 0 {
		ttl = DefaultTolerance
	}
	return &RedisDeliveryLog{rdb: rdb, ttl: ttl, prefix: "webhook:delivery:"}
}

func (l *RedisDeliveryLog) Seen(ctx context.Context, body []byte) (bool, error) {
	return utils.HasMarker(ctx, l.rdb, l.key(body))
}

func (l *RedisDeliveryLog) Record(ctx context.Context, body []byte) error {
	_, err := utils.SetMarker(ctx, l.rdb, l.key(body), l.ttl)
	return err
}

func (l *RedisDeliveryLog) key(body []byte) string {
	sum := sha256.Sum256(body)
	return l.prefix + hex.EncodeToString(sum[:])
}
