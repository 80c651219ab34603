package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
)

// MemoryTaskStore keeps task records in process memory. It backs the
// local executor and tests. Records round-trip through JSON on every
// write and read, giving callers the same isolation and byte-stable
// terminal reads the Redis store provides. Records never expire; the
// store only lives as long as the process.
type MemoryTaskStore struct {
	mu     sync.RWMutex
	tasks  map[string]*core.Task
	logger core.Logger
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore(logger core.Logger) *MemoryTaskStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	return &MemoryTaskStore{
		tasks:  make(map[string]*core.Task),
		logger: logger,
	}
}

// Create implements core.TaskStore.
func (s *MemoryTaskStore) Create(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task already exists: %s", task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)

	s.logger.Debug("Task record created", map[string]interface{}{
		"operation": "task_create",
		"task_id":   task.ID,
		"task_type": task.Type,
	})
	return nil
}

// Get implements core.TaskStore.
func (s *MemoryTaskStore) Get(ctx context.Context, taskID string) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, core.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Update implements core.TaskStore. Terminal records are immutable.
func (s *MemoryTaskStore) Update(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok {
		return core.ErrTaskNotFound
	}
	if existing.Status.IsTerminal() {
		return core.ErrTaskFinalized
	}

	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Delete implements core.TaskStore. Deleting a missing record is not
// an error.
func (s *MemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

var _ core.TaskStore = (*MemoryTaskStore)(nil)

// cloneTask deep-copies a task through its JSON form so stored records
// never alias caller-held structs. Falls back to a shallow copy if the
// task somehow fails to round-trip.
func cloneTask(task *core.Task) *core.Task {
	data, err := json.Marshal(task)
	if err != nil {
		dup := *task
		return &dup
	}
	var clone core.Task
	if err := json.Unmarshal(data, &clone); err != nil {
		dup := *task
		return &dup
	}
	return &clone
}
