// Package cache keeps computed room availability in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escaperoom/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AvailabilityCache stores free-slot lists per room and date range. Each room
// has a generation counter that is part of every key; Invalidate bumps it, so
// entries written before a booking change are never read again and simply
// expire. Redis errors degrade to cache misses.
type AvailabilityCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zerolog.Logger
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "availability_cache").Logger()
	return &AvailabilityCache{redis: client, ttl: ttl, prefix: "escaperoom", logger: &l}
}

func (c *AvailabilityCache) generationKey(roomID int64) string {
	return fmt.Sprintf("%s:availability:gen:%d", c.prefix, roomID)
}

func (c *AvailabilityCache) generation(ctx context.Context, roomID int64) (int64, error) {
	gen, err := c.redis.Get(ctx, c.generationKey(roomID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Lookup returns cached slots for the range. The returned key is empty when
// Redis is unreachable, telling the caller not to store.
func (c *AvailabilityCache) Lookup(ctx context.Context, roomID int64, from, to string) (string, []models.Slot, bool) {
	gen, err := c.generation(ctx, roomID)
	if err != nil {
		c.logger.Warn().Err(err).Int64("room_id", roomID).Msg("read cache generation")
		return "", nil, false
	}

	key := fmt.Sprintf("%s:availability:%d:%d:%s:%s", c.prefix, roomID, gen, from, to)
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("read availability cache")
		}
		return key, nil, false
	}

	var list []models.Slot
	if err := json.Unmarshal(val, &list); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("decode availability cache")
		return key, nil, false
	}
	return key, list, true
}

// Store writes slots under a key obtained from Lookup.
func (c *AvailabilityCache) Store(ctx context.Context, key string, list []models.Slot) {
	if key == "" {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("write availability cache")
	}
}

// Invalidate makes every cached range of the room stale.
func (c *AvailabilityCache) Invalidate(ctx context.Context, roomID int64) {
	if err := c.redis.Incr(ctx, c.generationKey(roomID)).Err(); err != nil {
		c.logger.Error().Err(err).Int64("room_id", roomID).Msg("invalidate availability cache")
	}
}

// Ping checks the Redis connection.
func (c *AvailabilityCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
