package orchestration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/planning"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// SessionPlanCache maps a session to its latest plan. The cache is
// advisory: implementations swallow their own failures, every miss is
// answerable from the itinerary store, and entries expire on a short
// TTL so a stale plan can only be served briefly.
type SessionPlanCache interface {
	// Get returns the cached plan for a session, or false on a miss.
	Get(ctx context.Context, sessionID string) (*planning.Plan, bool)

	// Set stores the session's latest plan.
	Set(ctx context.Context, sessionID string, plan *planning.Plan)
}

const defaultPlanCacheTTL = 15 * time.Minute

// PlanCache is the Redis-backed SessionPlanCache. A failed read
// counts as a miss whether the connection died or the entry would not
// decode; a failed write is logged and dropped.
type PlanCache struct {
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

// NewPlanCache creates the cache. A zero PlanTTL falls back to 15
// minutes.
func NewPlanCache(client *redis.Client, cfg core.CacheConfig, logger core.Logger) *PlanCache {
	ttl := cfg.PlanTTL
	if ttl <= 0 {
		ttl = defaultPlanCacheTTL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &PlanCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *PlanCache) planKey(sessionID string) string {
	return "tripsmith:sessions:plan:" + sessionID
}

// Get implements SessionPlanCache.
func (c *PlanCache) Get(ctx context.Context, sessionID string) (*planning.Plan, bool) {
	data, err := c.client.Get(ctx, c.planKey(sessionID)).Bytes()
	if err == redis.Nil {
		c.count("miss")
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Plan cache read failed, treating as miss", map[string]interface{}{
			"operation":  "plan_cache_get",
			"session_id": sessionID,
			"error":      err.Error(),
		})
		c.count("error")
		return nil, false
	}

	var plan planning.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		c.logger.Warn("Plan cache entry undecodable, treating as miss", map[string]interface{}{
			"operation":  "plan_cache_get",
			"session_id": sessionID,
			"error":      err.Error(),
		})
		c.count("error")
		return nil, false
	}

	c.count("hit")
	return &plan, true
}

// Set implements SessionPlanCache.
func (c *PlanCache) Set(ctx context.Context, sessionID string, plan *planning.Plan) {
	if plan == nil {
		return
	}
	data, err := json.Marshal(plan)
	if err != nil {
		c.logger.Warn("Plan cache encode failed", map[string]interface{}{
			"operation":  "plan_cache_set",
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}
	if err := c.client.Set(ctx, c.planKey(sessionID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Plan cache write failed", map[string]interface{}{
			"operation":  "plan_cache_set",
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

func (c *PlanCache) count(result string) {
	telemetry.Counter("orchestration.plan_cache.lookups",
		"module", telemetry.ModuleOrchestration,
		"result", result,
	)
}

var _ SessionPlanCache = (*PlanCache)(nil)
