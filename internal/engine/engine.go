package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
	"github.com/t77yq/flowforge/internal/registry"
	"github.com/t77yq/flowforge/internal/storage"
)

// DefaultMaxConcurrentTasks bounds task execution when no limit is configured.
const DefaultMaxConcurrentTasks = 10

// Config defines configuration for the engine
type Config struct {
	// MaxConcurrentTasks caps how many task attempts run at any instant,
	// across all workflow executions sharing the engine.
	MaxConcurrentTasks int
}

// EventSink receives task and workflow status changes. Implementations
// must not block the caller for long; publishing failures are theirs to log.
type EventSink interface {
	PublishTaskEvent(event model.TaskEvent)
	PublishWorkflowEvent(event model.WorkflowEvent)
}

// ExecutionSummary describes the outcome of one workflow execution.
type ExecutionSummary struct {
	WorkflowID     string               `json:"workflow_id"`
	Status         model.WorkflowStatus `json:"status"`
	CompletedTasks int                  `json:"completed_tasks"`
	FailedTasks    int                  `json:"failed_tasks"`
	TotalTasks     int                  `json:"total_tasks"`
	Duration       time.Duration        `json:"duration"`
}

// StatusSnapshot is a point-in-time view of a workflow and its tasks.
type StatusSnapshot struct {
	WorkflowID   string                      `json:"workflow_id"`
	Name         string                      `json:"name"`
	Status       model.WorkflowStatus        `json:"status"`
	TaskStatuses map[string]model.TaskStatus `json:"task_statuses"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// Engine owns workflows and drives their execution. Construct one at
// startup and pass it by reference; there is no package-level instance.
type Engine struct {
	logger        *zap.Logger
	registry      *registry.Registry
	maxConcurrent int

	// sem is the global admission resource: one slot per concurrently
	// executing task attempt, shared across every workflow execution.
	sem chan struct{}

	mu        sync.RWMutex
	workflows map[string]*model.Workflow

	// runningTasks tracks "<workflow_id>/<task_id>" keys for introspection
	// only; execution state lives on the Task records.
	runningTasks sync.Map

	events  EventSink
	history storage.RunHistoryStorage
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithEventSink publishes task and workflow status changes to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.events = sink }
}

// WithRunHistory records one row per finished task attempt.
func WithRunHistory(store storage.RunHistoryStorage) Option {
	return func(e *Engine) { e.history = store }
}

// New creates an engine backed by the given function registry.
func New(cfg Config, reg *registry.Registry, logger *zap.Logger, opts ...Option) *Engine {
	maxConcurrent := cfg.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTasks
	}

	e := &Engine{
		logger:        logger.Named("engine"),
		registry:      reg,
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		workflows:     make(map[string]*model.Workflow),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegisterFunction registers a named task function.
func (e *Engine) RegisterFunction(name string, fn model.TaskFunc) {
	e.registry.Register(name, fn)
}

// CreateWorkflow constructs and stores an empty workflow. Workflow IDs
// are unique across the engine.
func (e *Engine) CreateWorkflow(id, name, description string, metadata map[string]string) (*model.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.workflows[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateWorkflow, id)
	}

	workflow := model.NewWorkflow(id, name, description)
	workflow.Metadata = metadata
	e.workflows[id] = workflow

	e.logger.Info("Workflow created",
		zap.String("workflow_id", id),
		zap.String("name", name))

	return workflow, nil
}

// GetWorkflow returns the workflow or false if the ID is unknown.
func (e *Engine) GetWorkflow(id string) (*model.Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	workflow, ok := e.workflows[id]
	return workflow, ok
}

// GetWorkflowStatus returns a status snapshot or false if the ID is unknown.
func (e *Engine) GetWorkflowStatus(id string) (*StatusSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	workflow, ok := e.workflows[id]
	if !ok {
		return nil, false
	}

	snapshot := &StatusSnapshot{
		WorkflowID:   workflow.ID,
		Name:         workflow.Name,
		Status:       workflow.Status,
		TaskStatuses: make(map[string]model.TaskStatus, len(workflow.Tasks)),
		CreatedAt:    workflow.CreatedAt,
	}
	for taskID, task := range workflow.Tasks {
		snapshot.TaskStatuses[taskID] = task.Status
	}
	return snapshot, true
}

// CancelWorkflow marks a running workflow and its running tasks as
// cancelled. This is status-only: callables already dispatched keep
// running until they observe their context or return on their own.
func (e *Engine) CancelWorkflow(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	workflow, ok := e.workflows[id]
	if !ok || workflow.Status != model.WorkflowStatusRunning {
		return false
	}

	now := time.Now()
	workflow.Status = model.WorkflowStatusCancelled
	workflow.CompletedAt = &now

	for _, task := range workflow.Tasks {
		if task.Status == model.TaskStatusRunning {
			task.Status = model.TaskStatusCancelled
		}
	}

	e.logger.Info("Workflow cancelled", zap.String("workflow_id", id))
	return true
}

// RunningTasks returns "<workflow_id>/<task_id>" keys of tasks currently
// executing. Introspection only.
func (e *Engine) RunningTasks() []string {
	var keys []string
	e.runningTasks.Range(func(key, _ interface{}) bool {
		keys = append(keys, key.(string))
		return true
	})
	return keys
}

func (e *Engine) publishTaskEvent(workflowID string, task *model.Task) {
	if e.events == nil {
		return
	}
	e.events.PublishTaskEvent(model.TaskEvent{
		WorkflowID: workflowID,
		TaskID:     task.ID,
		Name:       task.Name,
		Status:     task.Status,
		Error:      task.ErrorMessage,
		RetryCount: task.RetryCount,
		Timestamp:  time.Now(),
	})
}

func (e *Engine) publishWorkflowEvent(workflow *model.Workflow, completed, failed int) {
	if e.events == nil {
		return
	}

	// Snapshot the mutable fields under the lock; CancelWorkflow and
	// concurrent executions write Status through e.mu.
	e.mu.RLock()
	event := model.WorkflowEvent{
		WorkflowID:     workflow.ID,
		Name:           workflow.Name,
		Status:         workflow.Status,
		CompletedTasks: completed,
		FailedTasks:    failed,
		TotalTasks:     len(workflow.Tasks),
		Timestamp:      time.Now(),
	}
	e.mu.RUnlock()

	e.events.PublishWorkflowEvent(event)
}
