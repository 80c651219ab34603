package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tripsmith-ai/tripsmith/core"
)

// RedisTaskStore persists task records as JSON documents in Redis.
// Every write replaces the whole record and restarts its TTL, so
// concurrent readers always observe a coherent snapshot and finished
// results linger long enough for pollers to collect them. Terminal
// records are immutable: an update against a completed or failed task
// fails with core.ErrTaskFinalized.
type RedisTaskStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger core.Logger
}

// NewRedisTaskStore creates a task store on the given client. Zero
// config fields fall back to DefaultTaskConfig values.
func NewRedisTaskStore(client *redis.Client, cfg core.TaskConfig, logger core.Logger) *RedisTaskStore {
	defaults := core.DefaultTaskConfig()
	if cfg.QueuePrefix == "" {
		cfg.QueuePrefix = defaults.QueuePrefix
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaults.ResultTTL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &RedisTaskStore{
		client: client,
		prefix: cfg.QueuePrefix,
		ttl:    cfg.ResultTTL,
		logger: logger,
	}
}

func (s *RedisTaskStore) taskKey(taskID string) string {
	return s.prefix + ":task:" + taskID
}

// Create implements core.TaskStore. SETNX keeps caller-generated ids
// unique across concurrent submitters.
func (s *RedisTaskStore) Create(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.taskKey(task.ID), data, s.ttl).Result()
	if err != nil {
		s.logger.Error("Failed to create task record", map[string]interface{}{
			"operation": "task_create",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to create task: %w", err)
	}
	if !created {
		return fmt.Errorf("task already exists: %s", task.ID)
	}

	s.logger.Debug("Task record created", map[string]interface{}{
		"operation": "task_create",
		"task_id":   task.ID,
		"task_type": task.Type,
	})
	return nil
}

// Get implements core.TaskStore.
func (s *RedisTaskStore) Get(ctx context.Context, taskID string) (*core.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, core.ErrTaskNotFound
	}
	if err != nil {
		s.logger.Error("Failed to read task record", map[string]interface{}{
			"operation": "task_get",
			"task_id":   taskID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task core.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// Update implements core.TaskStore. The stored record is replaced
// wholesale and its TTL restarts. Once the stored record is terminal
// it never changes again, so a poller that saw completed keeps seeing
// the identical record.
func (s *RedisTaskStore) Update(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}

	existing, err := s.Get(ctx, task.ID)
	if err != nil {
		return err
	}
	if existing.Status.IsTerminal() {
		return core.ErrTaskFinalized
	}

	task.UpdatedAt = time.Now()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := s.client.Set(ctx, s.taskKey(task.ID), data, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to update task record", map[string]interface{}{
			"operation": "task_update",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// Delete implements core.TaskStore. Deleting a missing record is not
// an error; the TTL may have beaten the caller to it.
func (s *RedisTaskStore) Delete(ctx context.Context, taskID string) error {
	deleted, err := s.client.Del(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if deleted == 0 {
		s.logger.Warn("Task record already gone", map[string]interface{}{
			"operation": "task_delete",
			"task_id":   taskID,
		})
	}
	return nil
}

var _ core.TaskStore = (*RedisTaskStore)(nil)
