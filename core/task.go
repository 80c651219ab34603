// Package core provides the shared interfaces and types for the trip
// planning runtime: logging, errors, configuration, state storage, and
// the background task system used for long-running media generation.
//
// # Background Tasks
//
// Long-running work (poster and video rendering takes minutes) is
// modeled as a Task handed to an Executor. Two executor implementations
// exist: an in-process one that runs the handler on a goroutine, and a
// queue-backed one that hands the task to a worker pool over Redis.
// Callers poll task state through the TaskStore; they never block on
// the work itself.
//
// # Distributed Tracing
//
// The Task struct includes TraceID and ParentSpanID fields to preserve
// distributed trace context across the async boundary. Workers restore
// this context using telemetry.StartLinkedSpan() so the rendering spans
// attach to the originating request trace.
//
// # Usage
//
// Submitting a task:
//
//	task := core.NewTask(uuid.New().String(), "media.generate", input)
//	err := executor.Submit(ctx, task)
//
// Processing a task (in worker):
//
//	func handleMedia(ctx context.Context, task *core.Task, reporter core.ProgressReporter) error {
//	    reporter.Report(&core.TaskProgress{CurrentStep: 1, TotalSteps: 3, StepName: "Concept"})
//	    // ... do work ...
//	    return nil
//	}
package core

import (
	"context"
	"errors"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Errors
// ═══════════════════════════════════════════════════════════════════════════

// ErrTaskNotFound means no task record exists under the requested ID.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskFinalized is returned when updating a task that already reached
// a terminal state (completed or failed). Terminal records are immutable.
var ErrTaskFinalized = errors.New("task already finalized")

// ErrTaskQueueEmpty means Dequeue waited out its timeout with nothing queued.
var ErrTaskQueueEmpty = errors.New("task queue empty")

// ErrInvalidTaskTransition rejects status changes the lifecycle does not allow.
var ErrInvalidTaskTransition = errors.New("invalid task status transition")

// ═══════════════════════════════════════════════════════════════════════════
// Types
// ═══════════════════════════════════════════════════════════════════════════

// TaskStatus is a point in the task lifecycle.
type TaskStatus string

const (
	// TaskStatusPending means the task is persisted but no worker has it yet.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusGenerating means a worker is running the handler now.
	TaskStatusGenerating TaskStatus = "generating"

	// TaskStatusCompleted means the handler returned without error.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed means the handler errored, panicked, or timed out.
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal reports whether the status can never change again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one unit of background media work, serialized as JSON both in
// the queue and in the store.
type Task struct {
	// ID is the unique identifier for this task.
	// Generated by the caller before submission so it can be returned
	// to clients immediately for polling.
	ID string `json:"id"`

	// Type routes the task to a registered handler, e.g. "media.generate".
	Type string `json:"type"`

	Status TaskStatus `json:"status"`

	// Input holds the handler parameters as loosely typed JSON.
	Input map[string]interface{} `json:"input"`

	// Result is whatever the handler produced, present once completed.
	Result interface{} `json:"result,omitempty"`

	// Error describes the failure, present once failed.
	Error *TaskError `json:"error,omitempty"`

	// Progress is the most recent handler-reported progress, if any.
	Progress *TaskProgress `json:"progress,omitempty"`

	Options TaskOptions `json:"options"`

	// Attempt counts queue deliveries of this task (1-indexed).
	// Only meaningful for the queue-backed executor; the in-process
	// executor runs every task exactly once.
	Attempt int `json:"attempt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt and CompletedAt bracket the handler run; both are nil
	// until the corresponding transition happens.
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// TraceID and ParentSpanID carry the submitting request's W3C trace
	// identity (32 and 16 hex chars) across the async boundary. Fill
	// them with SetTraceContext at submission; the worker links its
	// processing span back to them via telemetry.StartLinkedSpan.
	TraceID      string `json:"trace_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
}

// TaskProgress is a handler-reported snapshot of how far along a task is.
type TaskProgress struct {
	// CurrentStep counts from 1 up to TotalSteps.
	CurrentStep int     `json:"current_step"`
	TotalSteps  int     `json:"total_steps"`
	StepName    string  `json:"step_name"`
	Percentage  float64 `json:"percentage"`
	Message     string  `json:"message,omitempty"`
}

// TaskOptions tunes how a single task runs.
type TaskOptions struct {
	// Timeout bounds the handler run.
	// Zero means DefaultTaskConfig().DefaultTimeout.
	Timeout time.Duration `json:"timeout"`
}

// TaskError is the persisted form of a task failure.
type TaskError struct {
	// Code is one of the TaskErrorCode constants.
	Code string `json:"code"`

	// Message is shown to users polling the task.
	Message string `json:"message"`

	// Details carries debugging context not meant for end users.
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " (" + e.Details + ")"
	}
	return e.Code + ": " + e.Message
}

// Machine-readable codes for TaskError.Code.
const (
	// TaskErrorCodeTimeout means the handler outlived its timeout.
	TaskErrorCodeTimeout = "TASK_TIMEOUT"

	// TaskErrorCodeHandlerError means the handler returned an error.
	TaskErrorCodeHandlerError = "HANDLER_ERROR"

	// TaskErrorCodePanic means the handler panicked and was recovered.
	TaskErrorCodePanic = "HANDLER_PANIC"

	// TaskErrorCodeInvalidInput means the task input failed validation.
	TaskErrorCodeInvalidInput = "INVALID_INPUT"

	// TaskErrorCodeMaxDeliveries means the queue gave up redelivering the task.
	TaskErrorCodeMaxDeliveries = "MAX_DELIVERIES"
)

// ═══════════════════════════════════════════════════════════════════════════
// Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// Executor accepts tasks for background execution.
// Submission is fire-and-forget: Submit returns once the task record is
// persisted and the work is scheduled, never when the work finishes.
// Callers observe completion by polling the TaskStore.
type Executor interface {
	// Submit schedules a task for execution.
	// The task must carry a caller-generated ID and Status pending.
	Submit(ctx context.Context, task *Task) error

	// Mode identifies the executor implementation ("local" or "queue").
	Mode() string
}

// TaskQueue hands tasks from submitters to workers, backed by Redis
// lists (LPUSH in, BRPOP out) in the default implementation.
type TaskQueue interface {
	// Enqueue pushes a pending task onto the queue.
	Enqueue(ctx context.Context, task *Task) error

	// Dequeue pops the next task, waiting up to timeout for one to
	// arrive. An empty wait returns nil, nil rather than an error.
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)

	// Acknowledge tells the queue the dequeued task is done with,
	// whatever the outcome.
	Acknowledge(ctx context.Context, taskID string) error

	// Reject puts a failed task back for another delivery attempt.
	Reject(ctx context.Context, task *Task, reason string) error
}

// TaskStore is the system of record for task state.
// The default implementation keeps JSON blobs in Redis under a TTL.
type TaskStore interface {
	// Create writes a brand-new record, failing if the ID is taken.
	Create(ctx context.Context, task *Task) error

	// Get loads a task, or ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*Task, error)

	// Update overwrites the stored record with the task's current
	// status, progress, and result. ErrTaskNotFound if the record is
	// gone, ErrTaskFinalized if the stored copy is already terminal.
	Update(ctx context.Context, task *Task) error

	// Delete drops the record. Missing records are not an error.
	Delete(ctx context.Context, taskID string) error
}

// TaskWorker pulls tasks off the queue and runs their handlers.
type TaskWorker interface {
	// Start runs the dequeue loop until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop drains in-flight handlers, waiting up to the shutdown timeout.
	Stop(ctx context.Context) error

	// RegisterHandler binds a handler to a task type. Call before Start.
	RegisterHandler(taskType string, handler TaskHandler) error
}

// TaskHandler runs one task. ctx already carries the linked trace span,
// task.Input holds the parameters, and reporter streams progress back to
// the store. Return nil for success; the worker owns the status
// transitions and result persistence either way.
type TaskHandler func(ctx context.Context, task *Task, reporter ProgressReporter) error

// ProgressReporter lets a handler publish progress mid-run.
type ProgressReporter interface {
	// Report persists the snapshot so pollers see it immediately.
	Report(progress *TaskProgress) error
}

// ═══════════════════════════════════════════════════════════════════════════
// Configuration
// ═══════════════════════════════════════════════════════════════════════════

// TaskConfig configures the background task system
type TaskConfig struct {
	// Mode selects the executor implementation: "local" runs handlers
	// in-process, "queue" hands tasks to the Redis-backed worker pool
	Mode string `json:"mode" yaml:"mode"`

	// QueuePrefix namespaces the queue's Redis keys.
	QueuePrefix string `json:"queue_prefix" yaml:"queue_prefix"`

	// WorkerCount is how many handlers may run concurrently.
	WorkerCount int `json:"worker_count" yaml:"worker_count"`

	// DequeueTimeout bounds each blocking wait for work.
	DequeueTimeout time.Duration `json:"dequeue_timeout" yaml:"dequeue_timeout"`

	// ShutdownTimeout bounds the drain of in-flight handlers on Stop.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// DefaultTimeout applies to tasks whose Options.Timeout is zero.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`

	// ResultTTL is how long task records outlive their last update.
	ResultTTL time.Duration `json:"result_ttl" yaml:"result_ttl"`

	// MaxDeliveries caps queue redeliveries of a failing task.
	// Only the queue-backed executor redelivers; the in-process
	// executor never retries.
	MaxDeliveries int `json:"max_deliveries" yaml:"max_deliveries"`
}

// DefaultTaskConfig returns sensible defaults for the background task system.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		Mode:            "local",
		QueuePrefix:     "tripsmith:tasks",
		WorkerCount:     4,
		DequeueTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		DefaultTimeout:  10 * time.Minute,
		ResultTTL:       1 * time.Hour,
		MaxDeliveries:   3,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Helper Functions
// ═══════════════════════════════════════════════════════════════════════════

// NewTask builds a pending task around the given type and input, with
// both timestamps set to now.
func NewTask(id, taskType string, input map[string]interface{}) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Type:      taskType,
		Status:    TaskStatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTaskWithTimeout is NewTask with an explicit per-task timeout.
func NewTaskWithTimeout(id, taskType string, input map[string]interface{}, timeout time.Duration) *Task {
	task := NewTask(id, taskType, input)
	task.Options.Timeout = timeout
	return task
}

// SetTraceContext stamps the submitting request's trace identity onto
// the task, typically fed from telemetry.GetTraceContext(ctx).
func (t *Task) SetTraceContext(traceID, spanID string) {
	t.TraceID = traceID
	t.ParentSpanID = spanID
}
