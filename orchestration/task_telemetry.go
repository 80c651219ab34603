package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// Task telemetry emitters. Every lifecycle transition flows through
// one of these so metric names and span events stay uniform whether a
// task ran on the local executor or on the worker pool. Each emitter
// pairs a metric with a span event: the metric feeds dashboards, the
// event lands on the task's linked span for per-task debugging.

// EmitTaskSubmitted records a task entering the subsystem.
func EmitTaskSubmitted(ctx context.Context, task *core.Task, mode string) {
	telemetry.Counter("orchestration.tasks.submitted",
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
		"mode", mode,
	)
	telemetry.AddSpanEvent(ctx, "task.submitted",
		attribute.String("task_id", task.ID),
		attribute.String("task_type", task.Type),
		attribute.String("mode", mode),
	)
}

// EmitTaskStarted records a delivery reaching a handler. The worker id
// is empty for local executions.
func EmitTaskStarted(ctx context.Context, task *core.Task, workerID string) {
	telemetry.Counter("orchestration.tasks.started",
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
	)
	attrs := []attribute.KeyValue{
		attribute.String("task_id", task.ID),
		attribute.String("task_type", task.Type),
		attribute.Int("attempt", task.Attempt),
	}
	if workerID != "" {
		attrs = append(attrs, attribute.String("worker_id", workerID))
	}
	telemetry.AddSpanEvent(ctx, "task.started", attrs...)
}

// EmitTaskProgress records a handler progress report.
func EmitTaskProgress(ctx context.Context, task *core.Task, progress *core.TaskProgress) {
	if progress == nil {
		return
	}
	telemetry.AddSpanEvent(ctx, "task.progress",
		attribute.String("task_id", task.ID),
		attribute.Int("step", progress.CurrentStep),
		attribute.Int("total_steps", progress.TotalSteps),
		attribute.Float64("percentage", progress.Percentage),
		attribute.String("step_name", progress.StepName),
	)
}

// EmitTaskCompleted records a successful terminal transition.
func EmitTaskCompleted(ctx context.Context, task *core.Task, duration time.Duration) {
	telemetry.Counter("orchestration.tasks.finished",
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
		"status", string(core.TaskStatusCompleted),
	)
	telemetry.Histogram("orchestration.tasks.duration_ms", float64(duration.Milliseconds()),
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
		"status", string(core.TaskStatusCompleted),
	)
	telemetry.AddSpanEvent(ctx, "task.completed",
		attribute.String("task_id", task.ID),
		attribute.Int("attempt", task.Attempt),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)
}

// EmitTaskFailed records a failed terminal transition, labeled with
// the structured error code so timeouts, panics, and exhausted
// deliveries chart separately.
func EmitTaskFailed(ctx context.Context, task *core.Task, duration time.Duration, err error) {
	errorCode := "unknown"
	if task.Error != nil {
		errorCode = task.Error.Code
	}
	telemetry.Counter("orchestration.tasks.finished",
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
		"status", string(core.TaskStatusFailed),
		"error_code", errorCode,
	)
	telemetry.Histogram("orchestration.tasks.duration_ms", float64(duration.Milliseconds()),
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
		"status", string(core.TaskStatusFailed),
	)
	telemetry.AddSpanEvent(ctx, "task.failed",
		attribute.String("task_id", task.ID),
		attribute.Int("attempt", task.Attempt),
		attribute.String("error_code", errorCode),
	)
	telemetry.RecordSpanError(ctx, err)
}

// EmitTaskRequeued records a failed delivery going back on the queue.
func EmitTaskRequeued(ctx context.Context, task *core.Task, reason string) {
	telemetry.Counter("orchestration.tasks.requeued",
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
	)
	telemetry.AddSpanEvent(ctx, "task.requeued",
		attribute.String("task_id", task.ID),
		attribute.Int("attempt", task.Attempt),
		attribute.String("reason", reason),
	)
}

// EmitQueueDepth records the queue length observed after a push.
func EmitQueueDepth(queue string, depth int64) {
	telemetry.Gauge("orchestration.tasks.queue_depth", float64(depth),
		"module", telemetry.ModuleOrchestration,
		"queue", queue,
	)
}

// EmitQueueWaitTime records how long a task sat queued before its
// first delivery.
func EmitQueueWaitTime(ctx context.Context, task *core.Task, wait time.Duration) {
	telemetry.Histogram("orchestration.tasks.queue_wait_ms", float64(wait.Milliseconds()),
		"module", telemetry.ModuleOrchestration,
		"task_type", task.Type,
	)
	telemetry.AddSpanEvent(ctx, "task.queue_wait",
		attribute.String("task_id", task.ID),
		attribute.Int64("wait_ms", wait.Milliseconds()),
	)
}

// EmitWorkerStarted records a worker goroutine joining the pool.
func EmitWorkerStarted(workerID string, active int) {
	telemetry.Counter("orchestration.workers.started",
		"module", telemetry.ModuleOrchestration,
		"worker_id", workerID,
	)
	telemetry.Gauge("orchestration.workers.active", float64(active),
		"module", telemetry.ModuleOrchestration,
	)
}

// EmitWorkerStopped records a worker goroutine leaving the pool.
func EmitWorkerStopped(workerID string, active int) {
	telemetry.Counter("orchestration.workers.stopped",
		"module", telemetry.ModuleOrchestration,
		"worker_id", workerID,
	)
	telemetry.Gauge("orchestration.workers.active", float64(active),
		"module", telemetry.ModuleOrchestration,
	)
}

// EmitWorkerPanic records a handler panic caught by the recovery shim.
func EmitWorkerPanic(ctx context.Context, taskID string, panicValue interface{}) {
	telemetry.Counter("orchestration.workers.panics",
		"module", telemetry.ModuleOrchestration,
	)
	telemetry.AddSpanEvent(ctx, "worker.panic",
		attribute.String("task_id", taskID),
		attribute.String("panic", fmt.Sprintf("%v", panicValue)),
	)
}
