package model

import (
	"context"
	"time"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"

	// Reserved statuses. The engine never assigns these; they exist for a
	// future manual pause/skip surface.
	TaskStatusSkipped TaskStatus = "skipped"
	TaskStatusPaused  TaskStatus = "paused"
)

// TaskPriority represents the priority level of a task
type TaskPriority int

const (
	TaskPriorityLow    TaskPriority = 1
	TaskPriorityNormal TaskPriority = 2
	TaskPriorityHigh   TaskPriority = 3
)

// DefaultTaskTimeout bounds a single attempt when the task does not set one.
const DefaultTaskTimeout = 5 * time.Minute

// TaskFunc is the contract for a unit of work. The context carries the
// per-attempt deadline; cooperative functions should observe it.
type TaskFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Task represents a unit of work within a workflow. The work reference is
// either a direct Handler or a FuncName resolved against the function
// registry at dispatch time; Handler wins when both are set.
type Task struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Priority     TaskPriority           `json:"priority"`
	Handler      TaskFunc               `json:"-"`
	FuncName     string                 `json:"func_name,omitempty"`
	Args         map[string]interface{} `json:"args,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Metadata     map[string]string      `json:"metadata,omitempty"`

	// Runtime state, written only by the engine
	Status       TaskStatus    `json:"status"`
	Result       interface{}   `json:"result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	Timeout      time.Duration `json:"timeout"`

	// Timing fields
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a pending task with the default timeout and no retries.
func NewTask(id, name string, dependencies ...string) *Task {
	return &Task{
		ID:           id,
		Name:         name,
		Priority:     TaskPriorityNormal,
		Dependencies: dependencies,
		Status:       TaskStatusPending,
		Timeout:      DefaultTaskTimeout,
		CreatedAt:    time.Now(),
	}
}

// IsReady reports whether the task is eligible to run given the set of
// completed task IDs. A task with no dependencies is ready immediately.
// A task depending on an ID that never completes stays pending forever.
func (t *Task) IsReady(completed map[string]struct{}) bool {
	if t.Status != TaskStatusPending {
		return false
	}
	for _, depID := range t.Dependencies {
		if _, ok := completed[depID]; !ok {
			return false
		}
	}
	return true
}

// CanRetry reports whether a failed task still has retry budget left.
func (t *Task) CanRetry() bool {
	return t.Status == TaskStatusFailed && t.RetryCount < t.MaxRetries
}

// TaskEvent is the wire form of a task status change published to the
// event stream.
type TaskEvent struct {
	WorkflowID string     `json:"workflow_id"`
	TaskID     string     `json:"task_id"`
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`
	Timestamp  time.Time  `json:"timestamp"`
}
