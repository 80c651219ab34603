package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/resilience"
)

// RedisTaskQueue hands tasks between submitters and workers over a
// Redis list. Enqueue pushes with LPUSH and workers block on BRPOP, so
// each delivery is owned by exactly one worker. Redelivery is an
// explicit Reject push rather than a broker-side visibility timeout:
// the task carries its own delivery count and the worker decides when
// the budget is spent.
type RedisTaskQueue struct {
	client   *redis.Client
	queueKey string
	breaker  core.CircuitBreaker
	retry    *resilience.RetryConfig
	logger   core.Logger
}

// NewRedisTaskQueue creates a queue on the given client. An empty
// QueuePrefix falls back to the DefaultTaskConfig prefix.
func NewRedisTaskQueue(client *redis.Client, cfg core.TaskConfig, logger core.Logger) *RedisTaskQueue {
	prefix := cfg.QueuePrefix
	if prefix == "" {
		prefix = core.DefaultTaskConfig().QueuePrefix
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &RedisTaskQueue{
		client:   client,
		queueKey: prefix + ":queue",
		retry:    resilience.DefaultRetryConfig(),
		logger:   logger,
	}
}

// SetBreaker installs a circuit breaker around enqueues so a dead
// Redis sheds submissions fast instead of stalling every request on
// the retry loop.
func (q *RedisTaskQueue) SetBreaker(breaker core.CircuitBreaker) {
	q.breaker = breaker
}

// Enqueue implements core.TaskQueue.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	push := func() error {
		return q.push(ctx, data)
	}
	if q.breaker != nil {
		err = q.breaker.Execute(ctx, push)
	} else {
		err = push()
	}
	if err != nil {
		q.logger.Error("Failed to enqueue task", map[string]interface{}{
			"operation": "task_enqueue",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Debug("Task enqueued", map[string]interface{}{
		"operation": "task_enqueue",
		"task_id":   task.ID,
		"task_type": task.Type,
	})
	return nil
}

// push retries transient LPUSH failures before giving up. The list
// length LPUSH returns doubles as the queue depth sample.
func (q *RedisTaskQueue) push(ctx context.Context, data []byte) error {
	return resilience.Retry(ctx, q.retry, func() error {
		depth, err := q.client.LPush(ctx, q.queueKey, data).Result()
		if err != nil {
			return err
		}
		EmitQueueDepth(q.queueKey, depth)
		return nil
	})
}

// Dequeue implements core.TaskQueue. A timeout with nothing queued
// returns (nil, nil); worker loops treat it as an idle pass.
func (q *RedisTaskQueue) Dequeue(ctx context.Context, timeout time.Duration) (*core.Task, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(result))
	}

	var task core.Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// Acknowledge implements core.TaskQueue. BRPOP already removed the
// entry from the list, so a successful delivery has nothing to clear.
func (q *RedisTaskQueue) Acknowledge(ctx context.Context, taskID string) error {
	q.logger.Debug("Task acknowledged", map[string]interface{}{
		"operation": "task_acknowledge",
		"task_id":   taskID,
	})
	return nil
}

// Reject implements core.TaskQueue by pushing the task back for
// another delivery.
func (q *RedisTaskQueue) Reject(ctx context.Context, task *core.Task, reason string) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := q.push(ctx, data); err != nil {
		q.logger.Error("Failed to requeue rejected task", map[string]interface{}{
			"operation": "task_reject",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to requeue task: %w", err)
	}

	q.logger.Warn("Task queued for redelivery", map[string]interface{}{
		"operation": "task_reject",
		"task_id":   task.ID,
		"attempt":   task.Attempt,
		"reason":    reason,
	})
	return nil
}

// Length returns the number of queued tasks.
func (q *RedisTaskQueue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueKey).Result()
}

var _ core.TaskQueue = (*RedisTaskQueue)(nil)
