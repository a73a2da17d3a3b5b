package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// AvailabilityCache is an explicitly invalidated read-through cache for
// room availability counts.  It is a display aid: allocation always
// recounts inside its own transaction.
//
// Get resolves the slot for the current version of the type along with
// any cached value.  A miss is filled by passing that same slot to Set, so
// a count taken before an Invalidate can never land under the version
// that follows it.  An empty slot means the cache is unusable and Set
// does nothing.
type AvailabilityCache interface {
	Get(ctx context.Context, typeID uint64, iv model.Interval) (a model.Availability, slot string, ok bool)
	Set(ctx context.Context, slot string, a model.Availability)
	Invalidate(ctx context.Context, typeID uint64)
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, uint64, model.Interval) (model.Availability, string, bool) {
	return model.Availability{}, "", false
}
func (NopCache) Set(context.Context, string, model.Availability) {}
func (NopCache) Invalidate(context.Context, uint64)             {}

// RedisAvailabilityCache stores counts under a per-type version number.
// Invalidate bumps the version so every interval cached for that type is
// orphaned at once and left to expire.
type RedisAvailabilityCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisAvailabilityCache returns a cache keyed under prefix ("avail"
// when empty).
func NewRedisAvailabilityCache(rdb *redis.Client, ttl time.Duration, prefix string, logger *zap.Logger) *RedisAvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "avail"
	}
	return &RedisAvailabilityCache{rdb: rdb, ttl: ttl, prefix: prefix, logger: logger.Named("availability_cache")}
}

// VersionKey names the counter Invalidate bumps for typeID.  Other caches
// of per-type data (the gap response cache) fold it into their keys.
func (c *RedisAvailabilityCache) VersionKey(typeID uint64) string {
	return fmt.Sprintf("%s:v:%d", c.prefix, typeID)
}

func (c *RedisAvailabilityCache) key(ctx context.Context, typeID uint64, iv model.Interval) (string, error) {
	v, err := c.rdb.Get(ctx, c.VersionKey(typeID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%d:%s:%s", c.prefix, typeID, v, iv.CheckIn, iv.CheckOut), nil
}

func (c *RedisAvailabilityCache) Get(ctx context.Context, typeID uint64, iv model.Interval) (model.Availability, string, bool) {
	var a model.Availability
	key, err := c.key(ctx, typeID, iv)
	if err != nil {
		c.logger.Debug("version lookup failed", zap.Error(err))
		return a, "", false
	}
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("get failed", zap.String("key", key), zap.Error(err))
		}
		return a, key, false
	}
	if err := json.Unmarshal(bs, &a); err != nil {
		return a, key, false
	}
	return a, key, true
}

// Set stores a under the slot returned by Get.  SETNX keeps the first fill
// of a slot; later fills of the same version hold the same count.
func (c *RedisAvailabilityCache) Set(ctx context.Context, slot string, a model.Availability) {
	if slot == "" {
		return
	}
	bs, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.SetNX(ctx, slot, bs, c.ttl).Err(); err != nil {
		c.logger.Debug("set failed", zap.String("key", slot), zap.Error(err))
	}
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, typeID uint64) {
	if err := c.rdb.Incr(ctx, c.VersionKey(typeID)).Err(); err != nil {
		c.logger.Warn("invalidate failed", zap.Uint64("room_type_id", typeID), zap.Error(err))
	}
}
