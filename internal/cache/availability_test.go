package cache

import (
	"context"
	"testing"
	"time"

	"escaperoom/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*AvailabilityCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAvailabilityCache(client, time.Minute, nil), mr
}

func sampleSlots() []models.Slot {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []models.Slot{
		{RoomID: 5, Date: "2025-03-01", StartTime: "10:00", StartsAt: start, EndsAt: start.Add(time.Hour)},
		{RoomID: 5, Date: "2025-03-01", StartTime: "11:00", StartsAt: start.Add(time.Hour), EndsAt: start.Add(2 * time.Hour)},
	}
}

func TestAvailabilityCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key, _, ok := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	require.False(t, ok)
	require.NotEmpty(t, key)

	c.Store(ctx, key, sampleSlots())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	_, got, ok := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "11:00", got[1].StartTime)
	assert.True(t, got[0].StartsAt.Equal(sampleSlots()[0].StartsAt))

	// Different range, different entry.
	_, _, ok = c.Lookup(ctx, 5, "2025-03-01", "2025-03-02")
	assert.False(t, ok)
}

func TestAvailabilityCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key, _, _ := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	c.Store(ctx, key, sampleSlots())

	other, _, _ := c.Lookup(ctx, 6, "2025-03-01", "2025-03-01")
	c.Store(ctx, other, sampleSlots())

	c.Invalidate(ctx, 5)

	newKey, _, ok := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	assert.False(t, ok)
	assert.NotEqual(t, key, newKey)

	_, _, ok = c.Lookup(ctx, 6, "2025-03-01", "2025-03-01")
	assert.True(t, ok, "other rooms are unaffected")
}

func TestAvailabilityCache_StaleWriteIsNeverServed(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// A reader computes availability while a booking lands.
	key, _, _ := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	c.Invalidate(ctx, 5)
	c.Store(ctx, key, sampleSlots())

	_, _, ok := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	assert.False(t, ok)
}

func TestAvailabilityCache_RedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	key, _, ok := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	assert.False(t, ok)
	assert.Empty(t, key)
	assert.NotPanics(t, func() {
		c.Store(ctx, key, sampleSlots())
		c.Invalidate(ctx, 5)
	})
	assert.Error(t, c.Ping(ctx))
}

func TestAvailabilityCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key, _, _ := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	require.NoError(t, mr.Set(key, "{not json"))

	_, _, ok := c.Lookup(ctx, 5, "2025-03-01", "2025-03-01")
	assert.False(t, ok)
}
