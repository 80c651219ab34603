package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/planning"
)

func testPlan(destination string) *planning.Plan {
	return &planning.Plan{
		Title:       "Trip to " + destination,
		Summary:     "Three days in " + destination,
		Destination: destination,
		Days: []planning.DayPlan{
			{DayNumber: 1, Theme: "Arrival"},
			{DayNumber: 2, Theme: "Old town"},
			{DayNumber: 3, Theme: "Coast"},
		},
	}
}

func TestPlanCache_SetAndGet(t *testing.T) {
	_, client := setupTaskRedis(t)
	cache := NewPlanCache(client, core.CacheConfig{PlanTTL: time.Minute}, nil)
	ctx := context.Background()

	cache.Set(ctx, "session-1", testPlan("Lisbon"))

	got, ok := cache.Get(ctx, "session-1")
	require.True(t, ok)
	assert.Equal(t, "Lisbon", got.Destination)
	assert.Len(t, got.Days, 3)
	assert.Equal(t, "Old town", got.Days[1].Theme)
}

func TestPlanCache_MissReturnsFalse(t *testing.T) {
	_, client := setupTaskRedis(t)
	cache := NewPlanCache(client, core.CacheConfig{}, nil)

	got, ok := cache.Get(context.Background(), "session-1")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPlanCache_EntriesExpire(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewPlanCache(client, core.CacheConfig{PlanTTL: time.Minute}, nil)
	ctx := context.Background()

	cache.Set(ctx, "session-1", testPlan("Lisbon"))
	_, ok := cache.Get(ctx, "session-1")
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok = cache.Get(ctx, "session-1")
	assert.False(t, ok)
}

func TestPlanCache_CorruptEntryIsAMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, mr.Set("tripsmith:sessions:plan:session-1", "{not json"))

	cache := NewPlanCache(client, core.CacheConfig{}, nil)
	got, ok := cache.Get(context.Background(), "session-1")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPlanCache_NilPlanIgnored(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewPlanCache(client, core.CacheConfig{}, nil)
	cache.Set(context.Background(), "session-1", nil)

	assert.False(t, mr.Exists("tripsmith:sessions:plan:session-1"))
}

func TestPlanCache_DeadRedisDegrades(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	cache := NewPlanCache(client, core.CacheConfig{}, nil)
	ctx := context.Background()

	// Neither call may error or panic; the cache is advisory.
	cache.Set(ctx, "session-1", testPlan("Lisbon"))
	got, ok := cache.Get(ctx, "session-1")
	assert.False(t, ok)
	assert.Nil(t, got)
}
