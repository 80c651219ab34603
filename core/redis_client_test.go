package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupClientTestRedis creates a miniredis instance for client tests
func setupClientTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	return mr
}

func TestNewRedisClient(t *testing.T) {
	mr := setupClientTestRedis(t)
	defer mr.Close()

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        RedisDBSessions,
		Namespace: "tripsmith:sessions",
		Logger:    &NoOpLogger{},
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, RedisDBSessions, client.GetDB())
	assert.Equal(t, "tripsmith:sessions", client.GetNamespace())
}

func TestNewRedisClient_MissingURL(t *testing.T) {
	_, err := NewRedisClient(RedisClientOptions{
		RedisURL: "",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(RedisClientOptions{
		RedisURL: "not-a-redis-url://///",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewRedisClient_ConnectionFailure(t *testing.T) {
	// Nothing listens on this port
	_, err := NewRedisClient(RedisClientOptions{
		RedisURL: "redis://127.0.0.1:1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestRedisClient_Namespacing(t *testing.T) {
	mr := setupClientTestRedis(t)
	defer mr.Close()

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "tripsmith:sessions",
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "session-1", "plan-data", 0))

	// The raw key carries the namespace prefix
	raw, err := mr.Get("tripsmith:sessions:session-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-data", raw)

	// The wrapper resolves the same key without the prefix
	value, err := client.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-data", value)
}

func TestRedisClient_SetWithTTL(t *testing.T) {
	mr := setupClientTestRedis(t)
	defer mr.Close()

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "tripsmith:sessions",
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "session-2", "plan-data", 15*time.Minute))

	ttl, err := client.TTL(ctx, "session-2")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Expiry removes the key
	mr.FastForward(16 * time.Minute)
	_, err = client.Get(ctx, "session-2")
	assert.Error(t, err)
}

func TestRedisClient_Del(t *testing.T) {
	mr := setupClientTestRedis(t)
	defer mr.Close()

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "tripsmith:sessions",
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "session-3", "plan-data", 0))
	require.NoError(t, client.Del(ctx, "session-3"))

	_, err = client.Get(ctx, "session-3")
	assert.Error(t, err)
}

func TestRedisClient_HealthCheck(t *testing.T) {
	mr := setupClientTestRedis(t)
	defer mr.Close()

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL: "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestGetRedisDBName(t *testing.T) {
	tests := []struct {
		name     string
		db       int
		expected string
	}{
		// Named databases
		{"Tasks", RedisDBTasks, "Tasks"},
		{"Sessions", RedisDBSessions, "Sessions"},
		{"Research", RedisDBResearch, "Research Cache"},

		// Unnamed application databases
		{"DB3", 3, "DB 3"},
		{"DB6", 6, "DB 6"},

		// Reserved databases (7-15)
		{"Reserved7", 7, "Reserved DB 7"},
		{"Reserved15", 15, "Reserved DB 15"},

		// Outside the standard range
		{"DB16", 16, "DB 16"},
		{"DB100", 100, "DB 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetRedisDBName(tt.db)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsReservedDB(t *testing.T) {
	tests := []struct {
		name     string
		db       int
		expected bool
	}{
		// Not reserved (application DBs 0-6)
		{"DB0", 0, false},
		{"DB6", 6, false},

		// Reserved (DBs 7-15)
		{"DB7", 7, true},
		{"DB8", 8, true},
		{"DB15", 15, true},

		// Not reserved (beyond standard range)
		{"DB16", 16, false},
		{"DB100", 100, false},
		{"NegativeDB", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsReservedDB(tt.db)
			assert.Equal(t, tt.expected, result)
		})
	}
}
