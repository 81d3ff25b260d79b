package model

import (
	"fmt"
	"time"
)

// WorkflowStatus represents the status of a workflow
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"

	// Reserved; the engine never assigns it.
	WorkflowStatusPaused WorkflowStatus = "paused"
)

// Workflow is an aggregate of tasks related by dependency edges.
type Workflow struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tasks       map[string]*Task  `json:"tasks"`
	Status      WorkflowStatus    `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflow creates an empty pending workflow.
func NewWorkflow(id, name, description string) *Workflow {
	return &Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Tasks:       make(map[string]*Task),
		Status:      WorkflowStatusPending,
		CreatedAt:   time.Now(),
	}
}

// AddTask adds a task to the workflow. Task IDs are unique within a
// workflow; reusing one is a configuration error.
func (w *Workflow) AddTask(task *Task) error {
	if _, exists := w.Tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	w.Tasks[task.ID] = task
	return nil
}

// ValidateDAG checks the dependency graph for cycles using a depth-first
// traversal with three-color marking. Dependency IDs that reference no
// task in the workflow are not an error here: the referencing task simply
// never becomes ready.
func (w *Workflow) ValidateDAG() error {
	visited := make(map[string]bool, len(w.Tasks))
	onStack := make(map[string]bool, len(w.Tasks))

	var visit func(id string) error
	visit = func(id string) error {
		if onStack[id] {
			return fmt.Errorf("%w: task %s", ErrCircularDependency, id)
		}
		if visited[id] {
			return nil
		}

		visited[id] = true
		onStack[id] = true

		if task, ok := w.Tasks[id]; ok {
			for _, depID := range task.Dependencies {
				if err := visit(depID); err != nil {
					return err
				}
			}
		}

		onStack[id] = false
		return nil
	}

	for id := range w.Tasks {
		if !visited[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetReadyTasks returns every task whose dependencies are all in the
// completed set. Order is undefined; callers must not rely on it.
func (w *Workflow) GetReadyTasks(completed map[string]struct{}) []*Task {
	var ready []*Task
	for _, task := range w.Tasks {
		if task.IsReady(completed) {
			ready = append(ready, task)
		}
	}
	return ready
}

// TaskCounts returns the number of tasks per status.
func (w *Workflow) TaskCounts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, task := range w.Tasks {
		counts[task.Status]++
	}
	return counts
}

// WorkflowEvent is the wire form of a workflow status change published to
// the event stream.
type WorkflowEvent struct {
	WorkflowID     string         `json:"workflow_id"`
	Name           string         `json:"name"`
	Status         WorkflowStatus `json:"status"`
	CompletedTasks int            `json:"completed_tasks"`
	FailedTasks    int            `json:"failed_tasks"`
	TotalTasks     int            `json:"total_tasks"`
	Timestamp      time.Time      `json:"timestamp"`
}
