package orchestration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/core"
)

func setupTaskRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newTestTask(id string) *core.Task {
	return core.NewTask(id, TaskTypeMediaGenerate, map[string]interface{}{
		"summary": "Three days in Lisbon",
		"task_id": id,
	})
}

func TestRedisTaskStore_CreateAndGet(t *testing.T) {
	mr, client := setupTaskRedis(t)
	cfg := core.DefaultTaskConfig()
	store := NewRedisTaskStore(client, cfg, nil)
	ctx := context.Background()

	task := newTestTask("task-1")
	task.SetTraceContext("trace-abc", "span-def")
	require.NoError(t, store.Create(ctx, task))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.ID)
	assert.Equal(t, TaskTypeMediaGenerate, got.Type)
	assert.Equal(t, core.TaskStatusPending, got.Status)
	assert.Equal(t, "Three days in Lisbon", got.Input["summary"])
	assert.Equal(t, "trace-abc", got.TraceID)
	assert.Equal(t, "span-def", got.ParentSpanID)

	ttl := mr.TTL("tripsmith:tasks:task:task-1")
	assert.Equal(t, cfg.ResultTTL, ttl)
}

func TestRedisTaskStore_CreateDuplicate(t *testing.T) {
	_, client := setupTaskRedis(t)
	store := NewRedisTaskStore(client, core.DefaultTaskConfig(), nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestTask("task-1")))
	err := store.Create(ctx, newTestTask("task-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRedisTaskStore_GetMissing(t *testing.T) {
	_, client := setupTaskRedis(t)
	store := NewRedisTaskStore(client, core.DefaultTaskConfig(), nil)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestRedisTaskStore_UpdateReplacesAndRefreshesTTL(t *testing.T) {
	mr, client := setupTaskRedis(t)
	cfg := core.DefaultTaskConfig()
	store := NewRedisTaskStore(client, cfg, nil)
	ctx := context.Background()

	task := newTestTask("task-1")
	require.NoError(t, store.Create(ctx, task))

	mr.FastForward(30 * time.Minute)

	task.Status = core.TaskStatusGenerating
	task.Progress = &core.TaskProgress{CurrentStep: 1, TotalSteps: 2, Percentage: 50}
	require.NoError(t, store.Update(ctx, task))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusGenerating, got.Status)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 50.0, got.Progress.Percentage)
	assert.False(t, got.UpdatedAt.IsZero())

	// Every write restarts the clock on the record.
	assert.Equal(t, cfg.ResultTTL, mr.TTL("tripsmith:tasks:task:task-1"))
}

func TestRedisTaskStore_UpdateMissing(t *testing.T) {
	_, client := setupTaskRedis(t)
	store := NewRedisTaskStore(client, core.DefaultTaskConfig(), nil)

	err := store.Update(context.Background(), newTestTask("ghost"))
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestRedisTaskStore_TerminalRecordsAreImmutable(t *testing.T) {
	for _, status := range []core.TaskStatus{core.TaskStatusCompleted, core.TaskStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			_, client := setupTaskRedis(t)
			store := NewRedisTaskStore(client, core.DefaultTaskConfig(), nil)
			ctx := context.Background()

			task := newTestTask("task-1")
			require.NoError(t, store.Create(ctx, task))
			task.Status = status
			require.NoError(t, store.Update(ctx, task))

			task.Status = core.TaskStatusGenerating
			err := store.Update(ctx, task)
			assert.ErrorIs(t, err, core.ErrTaskFinalized)
		})
	}
}

func TestRedisTaskStore_TerminalReadsAreStable(t *testing.T) {
	_, client := setupTaskRedis(t)
	store := NewRedisTaskStore(client, core.DefaultTaskConfig(), nil)
	ctx := context.Background()

	task := newTestTask("task-1")
	require.NoError(t, store.Create(ctx, task))
	task.Status = core.TaskStatusCompleted
	task.Result = map[string]interface{}{"poster_url": "https://cdn.example.com/poster.png"}
	require.NoError(t, store.Update(ctx, task))

	first, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "task-1")
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestRedisTaskStore_Delete(t *testing.T) {
	_, client := setupTaskRedis(t)
	store := NewRedisTaskStore(client, core.DefaultTaskConfig(), nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestTask("task-1")))
	require.NoError(t, store.Delete(ctx, "task-1"))

	_, err := store.Get(ctx, "task-1")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)

	// Deleting again is quiet.
	assert.NoError(t, store.Delete(ctx, "task-1"))
}
