package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// Executor modes. Submission and status polling look identical to
// callers in both; only where the handler runs differs.
const (
	ExecutorModeLocal = "local"
	ExecutorModeQueue = "queue"
)

// LocalExecutor runs task handlers on in-process goroutines. It is
// the single-process counterpart of the queue executor: submission is
// still fire-and-forget through the task store, but there is no
// redelivery, so a failed attempt is terminal.
type LocalExecutor struct {
	store    core.TaskStore
	handlers map[string]core.TaskHandler
	mu       sync.RWMutex
	timeout  time.Duration
	logger   core.Logger
}

// NewLocalExecutor creates an in-process executor over the store.
func NewLocalExecutor(store core.TaskStore, cfg core.TaskConfig, logger core.Logger) *LocalExecutor {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = core.DefaultTaskConfig().DefaultTimeout
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &LocalExecutor{
		store:    store,
		handlers: make(map[string]core.TaskHandler),
		timeout:  timeout,
		logger:   logger,
	}
}

// Mode implements core.Executor.
func (e *LocalExecutor) Mode() string { return ExecutorModeLocal }

// RegisterHandler maps a task type to its handler.
func (e *LocalExecutor) RegisterHandler(taskType string, handler core.TaskHandler) error {
	if taskType == "" {
		return fmt.Errorf("task type is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[taskType] = handler
	return nil
}

// Submit implements core.Executor. The pending record is persisted
// before the handler goroutine starts, so a caller polling right
// after Submit always finds it.
func (e *LocalExecutor) Submit(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}

	e.mu.RLock()
	handler, ok := e.handlers[task.Type]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for task type %s", task.Type)
	}

	task.Status = core.TaskStatusPending
	if err := e.store.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to persist task: %w", err)
	}
	EmitTaskSubmitted(ctx, task, e.Mode())

	// The handler outlives the request, so it runs on a detached
	// context bounded by the task timeout, with its own copy of the
	// task.
	go e.run(cloneTask(task), handler)

	e.logger.Info("Task scheduled in process", map[string]interface{}{
		"operation": "task_submit",
		"task_id":   task.ID,
		"task_type": task.Type,
	})
	return nil
}

func (e *LocalExecutor) run(task *core.Task, handler core.TaskHandler) {
	ctx, endSpan := telemetry.StartLinkedSpan(
		context.Background(),
		"task.process",
		task.TraceID,
		task.ParentSpanID,
		map[string]string{
			"task.id":   task.ID,
			"task.type": task.Type,
			"executor":  e.Mode(),
		},
	)
	defer endSpan()

	timeout := e.timeout
	if task.Options.Timeout > 0 {
		timeout = task.Options.Timeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	task.Attempt = 1
	task.Status = core.TaskStatusGenerating
	task.StartedAt = &started
	if err := e.store.Update(ctx, task); err != nil {
		e.logger.Error("Failed to mark task generating", map[string]interface{}{
			"operation": "task_process",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}
	EmitTaskStarted(ctx, task, "")

	reporter := &progressReporter{ctx: taskCtx, task: task, store: e.store, logger: e.logger}
	err := runHandler(taskCtx, handler, task, reporter, e.logger)
	duration := time.Since(started)

	if err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			err = &core.TaskError{
				Code:    core.TaskErrorCodeTimeout,
				Message: fmt.Sprintf("task exceeded timeout of %v", timeout),
			}
		}
		finalizeFailed(ctx, e.store, task, duration, err, e.logger)
		return
	}
	finalizeCompleted(ctx, e.store, task, duration, e.logger)
}

var _ core.Executor = (*LocalExecutor)(nil)

// QueueExecutor hands tasks to the Redis-backed worker pool. Submit
// persists the pending record, then pushes the task onto the shared
// queue for whichever worker pops it first.
type QueueExecutor struct {
	store  core.TaskStore
	queue  core.TaskQueue
	logger core.Logger
}

// NewQueueExecutor creates a queue-backed executor.
func NewQueueExecutor(store core.TaskStore, queue core.TaskQueue, logger core.Logger) *QueueExecutor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &QueueExecutor{
		store:  store,
		queue:  queue,
		logger: logger,
	}
}

// Mode implements core.Executor.
func (e *QueueExecutor) Mode() string { return ExecutorModeQueue }

// Submit implements core.Executor.
func (e *QueueExecutor) Submit(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}

	task.Status = core.TaskStatusPending
	if err := e.store.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to persist task: %w", err)
	}

	if err := e.queue.Enqueue(ctx, task); err != nil {
		// A record that never reached the queue must not sit pending
		// until its TTL; pollers should see not-found instead.
		if delErr := e.store.Delete(ctx, task.ID); delErr != nil {
			e.logger.Error("Failed to remove unqueued task record", map[string]interface{}{
				"operation": "task_submit",
				"task_id":   task.ID,
				"error":     delErr.Error(),
			})
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	EmitTaskSubmitted(ctx, task, e.Mode())

	e.logger.Info("Task enqueued", map[string]interface{}{
		"operation": "task_submit",
		"task_id":   task.ID,
		"task_type": task.Type,
	})
	return nil
}

var _ core.Executor = (*QueueExecutor)(nil)
