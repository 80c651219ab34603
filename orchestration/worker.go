package orchestration

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// WorkerPool consumes the task queue with a fixed set of worker
// goroutines. Each delivery restores the submitting request's trace
// context on a linked span, drives the record through the task store,
// and on failure pushes the task back for redelivery until the
// delivery budget is spent. Because every worker in every process
// shares the queue, a pool can run inside the API process or in a
// dedicated worker binary without changing anything else.
type WorkerPool struct {
	queue    core.TaskQueue
	store    core.TaskStore
	handlers map[string]core.TaskHandler
	config   core.TaskConfig
	logger   core.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	running      atomic.Bool
	activeCount  atomic.Int32
	handlersLock sync.RWMutex
	workerSeq    atomic.Int32
}

// NewWorkerPool creates a pool over the queue and store. Zero config
// fields fall back to DefaultTaskConfig values.
func NewWorkerPool(queue core.TaskQueue, store core.TaskStore, cfg core.TaskConfig, logger core.Logger) *WorkerPool {
	defaults := core.DefaultTaskConfig()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaults.WorkerCount
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = defaults.DequeueTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaults.DefaultTimeout
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = defaults.MaxDeliveries
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &WorkerPool{
		queue:    queue,
		store:    store,
		handlers: make(map[string]core.TaskHandler),
		config:   cfg,
		logger:   logger,
	}
}

// RegisterHandler implements core.TaskWorker. Handlers must be in
// place before Start.
func (p *WorkerPool) RegisterHandler(taskType string, handler core.TaskHandler) error {
	if taskType == "" {
		return fmt.Errorf("task type is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	if p.running.Load() {
		return fmt.Errorf("cannot register handler while worker pool is running")
	}

	p.handlersLock.Lock()
	defer p.handlersLock.Unlock()
	p.handlers[taskType] = handler
	return nil
}

func (p *WorkerPool) handler(taskType string) (core.TaskHandler, bool) {
	p.handlersLock.RLock()
	defer p.handlersLock.RUnlock()
	h, ok := p.handlers[taskType]
	return h, ok
}

// Start implements core.TaskWorker. It blocks until the context is
// cancelled or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return core.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("Worker pool starting", map[string]interface{}{
		"operation":    "worker_start",
		"worker_count": p.config.WorkerCount,
	})

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", p.workerSeq.Add(1))
		p.wg.Add(1)
		go p.runWorker(ctx, workerID)
	}

	p.wg.Wait()
	p.running.Store(false)

	p.logger.Info("Worker pool stopped", map[string]interface{}{
		"operation": "worker_stop",
	})
	return nil
}

// Stop implements core.TaskWorker. It signals the workers and waits
// for in-flight deliveries up to the shutdown timeout.
func (p *WorkerPool) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool shutdown timed out", map[string]interface{}{
			"operation": "worker_stop",
			"active":    p.activeCount.Load(),
		})
		return fmt.Errorf("worker pool shutdown: %w", core.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()

	active := p.activeCount.Add(1)
	EmitWorkerStarted(workerID, int(active))
	p.logger.Debug("Worker started", map[string]interface{}{
		"operation": "worker_run",
		"worker_id": workerID,
	})
	defer func() {
		remaining := p.activeCount.Add(-1)
		EmitWorkerStopped(workerID, int(remaining))
		p.logger.Debug("Worker stopped", map[string]interface{}{
			"operation": "worker_run",
			"worker_id": workerID,
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.Dequeue(ctx, p.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Dequeue failed", map[string]interface{}{
				"operation": "worker_run",
				"worker_id": workerID,
				"error":     err.Error(),
			})
			continue
		}
		if task == nil {
			// Timeout with nothing queued.
			continue
		}

		p.processTask(workerID, task)
	}
}

// processTask runs one delivery of a task. The context is detached
// from the worker loop so shutdown does not abort a delivery midway;
// the task timeout still bounds it.
func (p *WorkerPool) processTask(workerID string, task *core.Task) {
	task.Attempt++

	ctx, endSpan := telemetry.StartLinkedSpan(
		context.Background(),
		"task.process",
		task.TraceID,
		task.ParentSpanID,
		map[string]string{
			"task.id":   task.ID,
			"task.type": task.Type,
			"worker.id": workerID,
		},
	)
	defer endSpan()

	started := time.Now()
	if task.Attempt == 1 && !task.CreatedAt.IsZero() {
		EmitQueueWaitTime(ctx, task, started.Sub(task.CreatedAt))
	}
	EmitTaskStarted(ctx, task, workerID)

	task.Status = core.TaskStatusGenerating
	if task.StartedAt == nil {
		now := started
		task.StartedAt = &now
	}
	if err := p.store.Update(ctx, task); err != nil {
		if errors.Is(err, core.ErrTaskFinalized) {
			// Redelivered after another worker finalized the record.
			p.logger.Warn("Skipping delivery of finalized task", map[string]interface{}{
				"operation": "task_process",
				"task_id":   task.ID,
				"worker_id": workerID,
			})
			p.acknowledge(ctx, task.ID)
			return
		}
		p.logger.Error("Failed to mark task generating", map[string]interface{}{
			"operation": "task_process",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}

	handler, ok := p.handler(task.Type)
	if !ok {
		err := &core.TaskError{
			Code:    core.TaskErrorCodeHandlerError,
			Message: fmt.Sprintf("no handler registered for task type %s", task.Type),
		}
		finalizeFailed(ctx, p.store, task, time.Since(started), err, p.logger)
		p.acknowledge(ctx, task.ID)
		return
	}

	timeout := p.config.DefaultTimeout
	if task.Options.Timeout > 0 {
		timeout = task.Options.Timeout
	}
	taskCtx, cancelTask := context.WithTimeout(ctx, timeout)
	defer cancelTask()

	reporter := &progressReporter{ctx: taskCtx, task: task, store: p.store, logger: p.logger}
	err := runHandler(taskCtx, handler, task, reporter, p.logger)
	duration := time.Since(started)

	if err == nil {
		finalizeCompleted(ctx, p.store, task, duration, p.logger)
		p.acknowledge(ctx, task.ID)
		return
	}

	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		err = &core.TaskError{
			Code:    core.TaskErrorCodeTimeout,
			Message: fmt.Sprintf("task exceeded timeout of %v", timeout),
		}
	}

	if p.shouldRedeliver(task, err) {
		p.requeueTask(ctx, task, duration, err)
		return
	}
	if task.Attempt >= p.config.MaxDeliveries {
		err = &core.TaskError{
			Code:    core.TaskErrorCodeMaxDeliveries,
			Message: fmt.Sprintf("task failed after %d deliveries", task.Attempt),
			Details: err.Error(),
		}
	}
	finalizeFailed(ctx, p.store, task, duration, err, p.logger)
}

// shouldRedeliver reports whether a failed delivery gets another try.
// Invalid input is deterministic and never retried; everything else
// goes back until the delivery budget runs out.
func (p *WorkerPool) shouldRedeliver(task *core.Task, err error) bool {
	var taskErr *core.TaskError
	if errors.As(err, &taskErr) && taskErr.Code == core.TaskErrorCodeInvalidInput {
		return false
	}
	return task.Attempt < p.config.MaxDeliveries
}

// requeueTask returns a failed delivery to the queue. The record goes
// back to pending first so pollers never mistake a transient failure
// for a final one. If the push itself fails the task finalizes as
// failed instead of vanishing.
func (p *WorkerPool) requeueTask(ctx context.Context, task *core.Task, duration time.Duration, cause error) {
	task.Status = core.TaskStatusPending
	task.Error = nil
	if err := p.store.Update(ctx, task); err != nil {
		p.logger.Error("Failed to mark task pending for redelivery", map[string]interface{}{
			"operation": "task_requeue",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}

	if err := p.queue.Reject(ctx, task, cause.Error()); err != nil {
		finalizeFailed(ctx, p.store, task, duration, cause, p.logger)
		return
	}

	EmitTaskRequeued(ctx, task, cause.Error())
	p.logger.Warn("Task delivery failed, redelivering", map[string]interface{}{
		"operation":      "task_requeue",
		"task_id":        task.ID,
		"attempt":        task.Attempt,
		"max_deliveries": p.config.MaxDeliveries,
		"error":          cause.Error(),
	})
}

func (p *WorkerPool) acknowledge(ctx context.Context, taskID string) {
	if err := p.queue.Acknowledge(ctx, taskID); err != nil {
		p.logger.Warn("Failed to acknowledge task", map[string]interface{}{
			"operation": "task_acknowledge",
			"task_id":   taskID,
			"error":     err.Error(),
		})
	}
}

var _ core.TaskWorker = (*WorkerPool)(nil)

// runHandler invokes a handler with panic recovery. A panic becomes a
// structured task error so the record finalizes instead of the worker
// goroutine dying.
func runHandler(ctx context.Context, handler core.TaskHandler, task *core.Task, reporter core.ProgressReporter, logger core.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.TaskError{
				Code:    core.TaskErrorCodePanic,
				Message: fmt.Sprintf("handler panic: %v", r),
			}
			EmitWorkerPanic(ctx, task.ID, r)
			logger.Error("Task handler panicked", map[string]interface{}{
				"operation": "task_process",
				"task_id":   task.ID,
				"task_type": task.Type,
				"panic":     fmt.Sprintf("%v", r),
				"stack":     string(debug.Stack()),
			})
		}
	}()
	return handler(ctx, task, reporter)
}

// taskErrorFrom normalizes an error into the structured task error
// shape, keeping an explicit TaskError as is.
func taskErrorFrom(err error) *core.TaskError {
	var taskErr *core.TaskError
	if errors.As(err, &taskErr) {
		return taskErr
	}
	return &core.TaskError{
		Code:    core.TaskErrorCodeHandlerError,
		Message: err.Error(),
	}
}

// finalizeCompleted writes the terminal completed record.
func finalizeCompleted(ctx context.Context, store core.TaskStore, task *core.Task, duration time.Duration, logger core.Logger) {
	now := time.Now()
	task.Status = core.TaskStatusCompleted
	task.CompletedAt = &now
	task.Error = nil
	if err := store.Update(ctx, task); err != nil {
		logger.Error("Failed to store completed task", map[string]interface{}{
			"operation": "task_complete",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}
	EmitTaskCompleted(ctx, task, duration)
	logger.Info("Task completed", map[string]interface{}{
		"operation":   "task_complete",
		"task_id":     task.ID,
		"task_type":   task.Type,
		"attempt":     task.Attempt,
		"duration_ms": duration.Milliseconds(),
	})
}

// finalizeFailed writes the terminal failed record.
func finalizeFailed(ctx context.Context, store core.TaskStore, task *core.Task, duration time.Duration, cause error, logger core.Logger) {
	now := time.Now()
	task.Status = core.TaskStatusFailed
	task.CompletedAt = &now
	task.Error = taskErrorFrom(cause)
	if err := store.Update(ctx, task); err != nil {
		logger.Error("Failed to store failed task", map[string]interface{}{
			"operation": "task_fail",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}
	EmitTaskFailed(ctx, task, duration, cause)
	logger.Error("Task failed", map[string]interface{}{
		"operation":   "task_fail",
		"task_id":     task.ID,
		"task_type":   task.Type,
		"attempt":     task.Attempt,
		"error_code":  task.Error.Code,
		"error":       cause.Error(),
		"duration_ms": duration.Milliseconds(),
	})
}

// progressReporter persists handler progress through the task store.
type progressReporter struct {
	ctx    context.Context
	task   *core.Task
	store  core.TaskStore
	logger core.Logger
}

// Report implements core.ProgressReporter.
func (r *progressReporter) Report(progress *core.TaskProgress) error {
	if progress == nil {
		return nil
	}
	r.task.Progress = progress
	if err := r.store.Update(r.ctx, r.task); err != nil {
		r.logger.Warn("Failed to persist task progress", map[string]interface{}{
			"operation": "task_progress",
			"task_id":   r.task.ID,
			"error":     err.Error(),
		})
		return err
	}
	EmitTaskProgress(r.ctx, r.task, progress)
	return nil
}

var _ core.ProgressReporter = (*progressReporter)(nil)
