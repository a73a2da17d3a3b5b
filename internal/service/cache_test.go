package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

func TestNopCacheNeverHits(t *testing.T) {
	var c AvailabilityCache = NopCache{}
	iv := mustInterval(t, "2024-06-01", "2024-06-02")
	_, slot, ok := c.Get(context.Background(), 1, iv)
	assert.False(t, ok)
	assert.Empty(t, slot)
	c.Set(context.Background(), slot, model.NewAvailability(5, 1))
	_, _, ok = c.Get(context.Background(), 1, iv)
	assert.False(t, ok)
}

// Runs against a live server when REDIS_TEST_ADDR is set.
func TestRedisAvailabilityCache(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	prefix := "test-avail-" + uuid.NewString()
	c := NewRedisAvailabilityCache(rdb, time.Minute, prefix, zap.NewNop())
	iv := mustInterval(t, "2024-06-01", "2024-06-03")
	want := model.NewAvailability(5, 2)

	_, slot, ok := c.Get(ctx, 1, iv)
	assert.False(t, ok)
	require.NotEmpty(t, slot)

	c.Set(ctx, slot, want)
	got, _, ok := c.Get(ctx, 1, iv)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, other, _ := c.Get(ctx, 2, iv)
	c.Set(ctx, other, model.NewAvailability(3, 0))
	c.Invalidate(ctx, 1)
	_, _, ok = c.Get(ctx, 1, iv)
	assert.False(t, ok)
	_, _, ok = c.Get(ctx, 2, iv)
	assert.True(t, ok)

	// A fill computed before the invalidation lands in the old slot and is
	// never read again.
	c.Set(ctx, slot, want)
	_, _, ok = c.Get(ctx, 1, iv)
	assert.False(t, ok)
}
