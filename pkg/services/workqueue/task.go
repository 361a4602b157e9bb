package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestKind is the closed set of operations the matching worker accepts.
type RequestKind string

const (
	// RequestAnalyzeSheet produces a fully populated sheet analysis.
	RequestAnalyzeSheet RequestKind = "analyze_sheet"
	// RequestFindBestMatches resolves each source column to its best target.
	RequestFindBestMatches RequestKind = "find_best_matches"
	// RequestComputeSimilarityMatrix scores every source against every target.
	RequestComputeSimilarityMatrix RequestKind = "compute_similarity_matrix"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is the interface that all work queue tasks must implement.
type Task interface {
	// ID returns a unique identifier for this task.
	ID() string

	// Name returns a human-readable name for display.
	Name() string

	// Kind returns which worker operation this task performs.
	Kind() RequestKind

	// Generation returns the request generation token. The caller compares
	// it against the current generation before applying the result; a stale
	// token means the result must be discarded, never merged.
	Generation() uint64

	// Execute runs the task. Errors are captured at the task boundary and
	// never crash sibling tasks.
	Execute(ctx context.Context) error
}

// TaskState holds the runtime state of a task.
type TaskState struct {
	Task        Task
	Status      TaskStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       error

	mu sync.RWMutex
}

// NewTaskState creates a new TaskState wrapping a task.
func NewTaskState(task Task) *TaskState {
	return &TaskState{
		Task:   task,
		Status: TaskStatusPending,
	}
}

// GetStatus returns the current status (thread-safe).
func (ts *TaskState) GetStatus() TaskStatus {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Status
}

// SetStatus updates the status and timestamps (thread-safe).
func (ts *TaskState) SetStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.Status = status
	now := time.Now()

	switch status {
	case TaskStatusRunning:
		ts.StartedAt = &now
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		ts.CompletedAt = &now
	}
}

// SetError sets the error (thread-safe).
func (ts *TaskState) SetError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.Error = err
}

// GetError returns the error (thread-safe).
func (ts *TaskState) GetError() error {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Error
}

// Snapshot returns an immutable copy of the task state.
func (ts *TaskState) Snapshot() TaskSnapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var errMsg string
	if ts.Error != nil {
		errMsg = ts.Error.Error()
	}

	return TaskSnapshot{
		ID:          ts.Task.ID(),
		Name:        ts.Task.Name(),
		Kind:        ts.Task.Kind(),
		Generation:  ts.Task.Generation(),
		Status:      ts.Status,
		StartedAt:   ts.StartedAt,
		CompletedAt: ts.CompletedAt,
		Error:       errMsg,
	}
}

// TaskSnapshot is an immutable view of task state for serialization.
type TaskSnapshot struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        RequestKind `json:"kind"`
	Generation  uint64      `json:"generation"`
	Status      TaskStatus  `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// BaseTask provides common task functionality.
// Embed this in concrete task implementations.
type BaseTask struct {
	id         string
	name       string
	kind       RequestKind
	generation uint64
}

// NewBaseTask creates a new base task.
func NewBaseTask(name string, kind RequestKind, generation uint64) BaseTask {
	return BaseTask{
		id:         uuid.New().String(),
		name:       name,
		kind:       kind,
		generation: generation,
	}
}

// ID returns the task ID.
func (t BaseTask) ID() string {
	return t.id
}

// Name returns the task name.
func (t BaseTask) Name() string {
	return t.name
}

// Kind returns the worker operation.
func (t BaseTask) Kind() RequestKind {
	return t.kind
}

// Generation returns the request generation token.
func (t BaseTask) Generation() uint64 {
	return t.generation
}
