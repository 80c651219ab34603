// Redis client wrapper shared by the task subsystem, the session plan
// cache, and any future Redis-backed component. It adds two things over
// go-redis: a fixed database allocation so subsystems cannot trample
// each other's keys, and automatic key namespacing within a database.
//
// The allocation:
//
//	DB 0  tasks      background task records and the work queue
//	DB 1  sessions   session state and the plan cache
//	DB 2  research   research provider response cache
//	DB 3-6           free for application data
//	DB 7-15          reserved
//
// A client created with Namespace "tripsmith:tasks" reads and writes
// keys as "tripsmith:tasks:<key>"; callers never see the prefix.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// connectProbeTimeout bounds the ping NewRedisClient issues before
// handing the client out.
const connectProbeTimeout = 5 * time.Second

// RedisClientOptions configures a RedisClient.
type RedisClientOptions struct {
	RedisURL  string
	DB        int    // database number, 0-15
	Namespace string // key prefix within the database
	Logger    Logger
}

// RedisClient wraps a go-redis client with a pinned database and key
// namespace. Subsystems that need raw commands (the task store, the
// queue) share the underlying connection pool via Client.
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger
}

// NewRedisClient connects to Redis and verifies the connection before
// returning. A URL that is missing or unparseable wraps
// ErrInvalidConfiguration; an unreachable server wraps
// ErrConnectionFailed.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}

	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		logger.Error("Unparseable Redis URL", map[string]interface{}{
			"operation": "redis_connect",
			"redis_url": opts.RedisURL,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	// The database from the options wins over one encoded in the URL,
	// so a shared TRIPSMITH_REDIS_URL still lands each subsystem in
	// its allocated database.
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	if IsReservedDB(opts.DB) {
		logger.Warn("Redis DB is in the reserved range", map[string]interface{}{
			"operation": "redis_connect",
			"db":        opts.DB,
			"reserved":  fmt.Sprintf("%d-%d", RedisDBReservedStart, RedisDBReservedEnd),
		})
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Redis connection failed", map[string]interface{}{
			"operation": "redis_connect",
			"db":        opts.DB,
			"db_name":   GetRedisDBName(opts.DB),
			"namespace": opts.Namespace,
			"error":     err.Error(),
		})
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis DB %d: %w", opts.DB, ErrConnectionFailed)
	}

	logger.Info("Redis client connected", map[string]interface{}{
		"operation": "redis_connect",
		"db":        opts.DB,
		"db_name":   GetRedisDBName(opts.DB),
		"namespace": opts.Namespace,
	})

	return &RedisClient{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    logger,
	}, nil
}

// Client exposes the underlying go-redis client.
// The task store and queue share a single connection pool through this.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// GetDB returns the database number this client is pinned to.
func (r *RedisClient) GetDB() int {
	return r.dbID
}

// GetNamespace returns the key prefix this client applies.
func (r *RedisClient) GetNamespace() string {
	return r.namespace
}

// Close releases the connection pool.
func (r *RedisClient) Close() error {
	r.logger.Info("Closing Redis client", map[string]interface{}{
		"operation": "redis_close",
		"db":        r.dbID,
		"namespace": r.namespace,
	})
	if err := r.client.Close(); err != nil {
		r.logger.Error("Redis close failed", map[string]interface{}{
			"operation": "redis_close",
			"db":        r.dbID,
			"error":     err.Error(),
		})
		return err
	}
	return nil
}

// namespaced prefixes a key with the client's namespace.
func (r *RedisClient) namespaced(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

// Get reads a key within the namespace.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.namespaced(key)).Result()
}

// Set writes a key within the namespace. ttl 0 stores without expiry.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, r.namespaced(key), value, ttl).Err()
}

// Del removes keys within the namespace.
func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.namespaced(key)
	}
	return r.client.Del(ctx, prefixed...).Err()
}

// Expire sets a TTL on an existing key.
func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, r.namespaced(key), ttl).Err()
}

// TTL reports the remaining TTL of a key.
func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, r.namespaced(key)).Result()
}

// HealthCheck pings the server.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil {
		r.logger.Error("Redis health check failed", map[string]interface{}{
			"operation": "redis_health",
			"db":        r.dbID,
			"db_name":   GetRedisDBName(r.dbID),
			"error":     err.Error(),
		})
	}
	return err
}

// Database allocation. Subsystems take their DB number from here, never
// from literals, so the layout stays visible in one place.
const (
	// RedisDBTasks holds background task records and the work queue.
	RedisDBTasks = 0

	// RedisDBSessions holds session state and the plan cache.
	RedisDBSessions = 1

	// RedisDBResearch holds cached research provider responses.
	RedisDBResearch = 2

	// RedisDBReservedStart..RedisDBReservedEnd are held back for future
	// subsystems. Redis ships with databases 0-15; raising `databases`
	// in redis.conf widens the range but not the reservation.
	RedisDBReservedStart = 7
	RedisDBReservedEnd   = 15
)

// IsReservedDB reports whether a database number falls in the reserved
// range. Application data belongs in 0-6.
func IsReservedDB(db int) bool {
	return db >= RedisDBReservedStart && db <= RedisDBReservedEnd
}

// GetRedisDBName names a database for logs and diagnostics.
func GetRedisDBName(db int) string {
	switch db {
	case RedisDBTasks:
		return "Tasks"
	case RedisDBSessions:
		return "Sessions"
	case RedisDBResearch:
		return "Research Cache"
	default:
		if IsReservedDB(db) {
			return fmt.Sprintf("Reserved DB %d", db)
		}
		return fmt.Sprintf("DB %d", db)
	}
}
