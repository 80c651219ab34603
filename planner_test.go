package tripsmith

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/orchestration"
	"github.com/tripsmith-ai/tripsmith/planning"
	"github.com/tripsmith-ai/tripsmith/storage"
)

// offlineConfig is a default configuration that never dials anything:
// reasoning stays mocked, media stays off, and the plan cache is
// disabled so no Redis connection is attempted.
func offlineConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Cache.Enabled = false
	return cfg
}

func TestNew_LocalModeServesTurnsOffline(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, offlineConfig())
	require.NoError(t, err)
	defer p.Close(ctx)

	reqCtx := map[string]interface{}{"session_id": "session-local"}

	resp, err := p.Run(ctx, "hi", reqCtx)
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentProfiler, resp.Agent)
	assert.Equal(t, planning.StatusGreeted, resp.Status)

	resp, err = p.Run(ctx, "Plan me a long weekend somewhere sunny", reqCtx)
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentOptimizer, resp.Agent)
	assert.Equal(t, orchestration.StatusSuccess, resp.Status)

	plan, ok := resp.Data["itinerary"].(*planning.Plan)
	require.True(t, ok, "full pass must carry the itinerary")
	assert.Equal(t, "Paris", plan.Destination)
	assert.Len(t, plan.Days, 3)

	// Media is off, so no task handle and nothing to poll.
	assert.Empty(t, resp.MediaTaskID)
	assert.NotContains(t, resp.Data, "media")

	_, err = p.TaskStatus(ctx, "never-submitted")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)

	err = p.StartWorkers(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	assert.NoError(t, p.Close(ctx))
}

func TestNew_QueueModePersistsAndCaches(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	defer mr.Close()

	ctx := context.Background()
	cfg := core.DefaultConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Tasks.Mode = orchestration.ExecutorModeQueue

	p, err := New(ctx, cfg)
	require.NoError(t, err)
	defer p.Close(ctx)

	itin := &storage.Itinerary{
		SessionID:   "session-queue",
		Destination: "Lisbon",
		Plan:        &planning.Plan{Title: "3-Day Itinerary", Destination: "Lisbon"},
	}
	require.NoError(t, p.SaveItinerary(ctx, itin))

	// The save wrote through to the session plan cache.
	assert.NotEmpty(t, mr.DB(core.RedisDBSessions).Keys())

	plan, err := p.LatestPlan(ctx, "session-queue")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", plan.Destination)

	// Losing the cache only costs a store read.
	mr.FlushAll()
	plan, err = p.LatestPlan(ctx, "session-queue")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", plan.Destination)

	_, err = p.TaskStatus(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)

	// The pool exists but never started, so stopping is a no-op.
	assert.NoError(t, p.StopWorkers(ctx))
	assert.NoError(t, p.Close(ctx))
}

func TestNew_QueueModeRequiresRedis(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"
	cfg.Tasks.Mode = orchestration.ExecutorModeQueue

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task subsystem")
}

func TestNew_MediaWithoutKeyDegradesToPlanOnly(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig()
	cfg.Media.Enabled = true

	p, err := New(ctx, cfg)
	require.NoError(t, err)
	defer p.Close(ctx)

	resp, err := p.Run(ctx, "Book me a trip to Lisbon", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentOptimizer, resp.Agent)
	assert.Empty(t, resp.MediaTaskID)
	assert.NotContains(t, resp.Data, "media")
}

func TestNew_UnreachablePlanCacheIsNotFatal(t *testing.T) {
	ctx := context.Background()
	cfg := core.DefaultConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"

	p, err := New(ctx, cfg)
	require.NoError(t, err)
	defer p.Close(ctx)

	resp, err := p.Run(ctx, "Plan a trip", map[string]interface{}{"session_id": "session-nocache"})
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentOptimizer, resp.Agent)

	_, err = p.LatestPlan(ctx, "session-nocache")
	assert.ErrorIs(t, err, core.ErrPlanNotFound)
}

func TestRun_SessionRemembersProfileAcrossTurns(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, offlineConfig())
	require.NoError(t, err)
	defer p.Close(ctx)

	// The first turn supplies the profile explicitly and resolves a
	// destination, so the session has something worth remembering.
	resp, err := p.Run(ctx, "I want to see temples and gardens", map[string]interface{}{
		"session_id": "session-memory",
		"profile":    planning.Profile{Destination: "Tokyo"},
	})
	require.NoError(t, err)
	require.Equal(t, orchestration.AgentOptimizer, resp.Agent)

	// The second turn carries no profile and no trip keyword; only the
	// remembered destination can open the research gate.
	resp, err = p.Run(ctx, "what sounds tasty there?", map[string]interface{}{
		"session_id": "session-memory",
	})
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentOptimizer, resp.Agent)
	plan, ok := resp.Data["itinerary"].(*planning.Plan)
	require.True(t, ok)
	assert.Equal(t, "Tokyo", plan.Destination)

	// A fresh session with the same message has nothing remembered.
	resp, err = p.Run(ctx, "what sounds tasty there?", map[string]interface{}{
		"session_id": "session-fresh",
	})
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentProfiler, resp.Agent)
}

func TestEndSession_ForgetsProfile(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, offlineConfig())
	require.NoError(t, err)
	defer p.Close(ctx)

	_, err = p.Run(ctx, "I want to see temples", map[string]interface{}{
		"session_id": "session-reset",
		"profile":    planning.Profile{Destination: "Tokyo"},
	})
	require.NoError(t, err)

	p.EndSession("session-reset")

	resp, err := p.Run(ctx, "what sounds tasty there?", map[string]interface{}{
		"session_id": "session-reset",
	})
	require.NoError(t, err)
	assert.Equal(t, orchestration.AgentProfiler, resp.Agent)
}

func TestSaveItinerary_RejectsNil(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, offlineConfig())
	require.NoError(t, err)
	defer p.Close(ctx)

	require.Error(t, p.SaveItinerary(ctx, nil))
}
