package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConcurrencyCap_LimitAndRelease(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	ok, err := AcquireConcurrencyCap(ctx, rdb, "sync:t1:b1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AcquireConcurrencyCap(ctx, rdb, "sync:t1:b1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must be rejected at limit 1")

	require.NoError(t, ReleaseConcurrencyCap(ctx, rdb, "sync:t1:b1"))

	ok, err = AcquireConcurrencyCap(ctx, rdb, "sync:t1:b1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrencyCap_TTLExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	ok, err := AcquireConcurrencyCap(ctx, rdb, "sync:t1:b2", 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = AcquireConcurrencyCap(ctx, rdb, "sync:t1:b2", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "leaked slot must expire")
}

func TestConcurrencyCap_Validation(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	_, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Second)
	assert.Error(t, err)
	_, err = AcquireConcurrencyCap(ctx, rdb, "", 1, time.Second)
	assert.Error(t, err)
	_, err = AcquireConcurrencyCap(ctx, rdb, "k", 0, time.Second)
	assert.Error(t, err)
	_, err = AcquireConcurrencyCap(ctx, rdb, "k", 1, 0)
	assert.Error(t, err)
}

func TestMarker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	seen, err := HasMarker(ctx, rdb, "wh:abc")
	require.NoError(t, err)
	assert.False(t, seen)

	created, err := SetMarker(ctx, rdb, "wh:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = SetMarker(ctx, rdb, "wh:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, created)

	seen, err = HasMarker(ctx, rdb, "wh:abc")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Minute)
	seen, err = HasMarker(ctx, rdb, "wh:abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}
