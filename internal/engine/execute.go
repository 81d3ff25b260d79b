package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/flowforge/internal/model"
	"github.com/t77yq/flowforge/internal/storage"
)

// ExecuteWorkflow runs a workflow to completion and returns a summary.
//
// Execution is breadth-first and layered: the engine repeatedly computes
// the ready frontier, dispatches the whole wave concurrently bounded by
// the engine-wide admission semaphore, joins, then reclassifies failures
// as retryable or permanent. Task failures are contained as task state;
// only structural
// problems (unknown workflow ID, a dependency cycle) are returned as
// errors, before any task runs.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string) (summary *ExecutionSummary, err error) {
	e.mu.RLock()
	workflow, ok := e.workflows[workflowID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Workflow execution panicked",
				zap.String("workflow_id", workflowID),
				zap.Any("panic", r))

			e.mu.Lock()
			now := time.Now()
			workflow.Status = model.WorkflowStatusFailed
			workflow.CompletedAt = &now
			e.mu.Unlock()

			summary = e.summarize(workflow, start)
			err = nil
		}
	}()

	if dagErr := workflow.ValidateDAG(); dagErr != nil {
		e.mu.Lock()
		now := time.Now()
		workflow.Status = model.WorkflowStatusFailed
		workflow.CompletedAt = &now
		e.mu.Unlock()

		e.logger.Error("DAG validation failed",
			zap.String("workflow_id", workflowID),
			zap.Error(dagErr))
		return nil, dagErr
	}

	e.mu.Lock()
	now := time.Now()
	workflow.Status = model.WorkflowStatusRunning
	workflow.StartedAt = &now
	workflow.CompletedAt = nil

	// Tasks completed by an earlier execution stay completed; their
	// dependents remain eligible without re-running them.
	completed := make(map[string]struct{})
	for id, task := range workflow.Tasks {
		if task.Status == model.TaskStatusCompleted {
			completed[id] = struct{}{}
		}
	}
	e.mu.Unlock()

	e.logger.Info("Workflow execution started",
		zap.String("workflow_id", workflowID),
		zap.Int("total_tasks", len(workflow.Tasks)),
		zap.Int("max_concurrent", e.maxConcurrent))

	permanentlyFailed := make(map[string]struct{})

	for {
		e.mu.Lock()
		if workflow.Status == model.WorkflowStatusCancelled {
			e.mu.Unlock()
			break
		}

		wave := workflow.GetReadyTasks(completed)
		if len(wave) == 0 {
			// Either everything ran or the remainder is stuck behind a
			// permanently failed dependency.
			e.mu.Unlock()
			break
		}

		// Higher priority tasks are admitted first when the wave exceeds
		// the concurrency bound.
		sort.Slice(wave, func(i, j int) bool {
			if wave[i].Priority != wave[j].Priority {
				return wave[i].Priority > wave[j].Priority
			}
			return wave[i].CreatedAt.Before(wave[j].CreatedAt)
		})

		for _, task := range wave {
			task.Status = model.TaskStatusReady
		}
		e.mu.Unlock()

		e.logger.Debug("Dispatching wave",
			zap.String("workflow_id", workflowID),
			zap.Int("size", len(wave)))

		g := new(errgroup.Group)
		for _, task := range wave {
			task := task
			// Admission: one slot of the engine-wide semaphore per running
			// attempt, shared with every other workflow execution. Acquiring
			// here, in sorted order, keeps priority admission deterministic.
			e.sem <- struct{}{}
			g.Go(func() error {
				defer func() { <-e.sem }()
				e.executeTask(ctx, workflow, task)
				return nil
			})
		}
		// Join barrier: wave N+1 never starts before wave N has fully
		// finished. executeTask never returns an error.
		_ = g.Wait()

		e.mu.Lock()
		for _, task := range wave {
			switch {
			case task.Status == model.TaskStatusCompleted:
				completed[task.ID] = struct{}{}
			case task.CanRetry():
				task.RetryCount++
				task.Status = model.TaskStatusPending
				e.logger.Info("Task scheduled for retry",
					zap.String("workflow_id", workflowID),
					zap.String("task_id", task.ID),
					zap.Int("attempt", task.RetryCount))
			case task.Status == model.TaskStatusFailed:
				permanentlyFailed[task.ID] = struct{}{}
			}
		}
		cancelled := workflow.Status == model.WorkflowStatusCancelled
		e.mu.Unlock()

		if cancelled {
			break
		}
	}

	e.mu.Lock()
	if workflow.Status == model.WorkflowStatusRunning {
		if len(permanentlyFailed) > 0 {
			workflow.Status = model.WorkflowStatusFailed
		} else {
			workflow.Status = model.WorkflowStatusCompleted
		}
	}
	endTime := time.Now()
	workflow.CompletedAt = &endTime
	e.mu.Unlock()

	summary = e.summarize(workflow, start)
	e.publishWorkflowEvent(workflow, summary.CompletedTasks, summary.FailedTasks)

	e.logger.Info("Workflow execution finished",
		zap.String("workflow_id", workflowID),
		zap.String("status", string(summary.Status)),
		zap.Int("completed_tasks", summary.CompletedTasks),
		zap.Int("failed_tasks", summary.FailedTasks),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// executeTask runs exactly one attempt of one task. Failures never
// propagate out of here; they are fully contained as task state.
func (e *Engine) executeTask(ctx context.Context, workflow *model.Workflow, task *model.Task) {
	e.mu.Lock()
	if task.Status != model.TaskStatusReady {
		// The workflow was cancelled between dispatch and admission.
		e.mu.Unlock()
		return
	}
	now := time.Now()
	task.Status = model.TaskStatusRunning
	task.StartedAt = &now
	task.CompletedAt = nil
	task.ErrorMessage = ""
	e.mu.Unlock()

	key := workflow.ID + "/" + task.ID
	e.runningTasks.Store(key, task)
	defer e.runningTasks.Delete(key)

	e.publishTaskEvent(workflow.ID, task)

	fn := task.Handler
	if fn == nil {
		var ok bool
		fn, ok = e.registry.Resolve(task.FuncName)
		if !ok {
			e.finishTask(ctx, workflow, task, nil, fmt.Errorf("%w: %q", ErrFunctionNotRegistered, task.FuncName))
			return
		}
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = model.DefaultTaskTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)

	// The callable runs in its own goroutine so a blocking function
	// cannot stall the deadline timer. A non-cooperative callable that
	// ignores its context is abandoned on expiry and its late result
	// discarded.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		result, fnErr := fn(attemptCtx, task.Args)
		done <- outcome{result: result, err: fnErr}
	}()

	select {
	case out := <-done:
		e.finishTask(ctx, workflow, task, out.result, out.err)
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			e.finishTask(ctx, workflow, task, nil, fmt.Errorf("timed out after %s", timeout))
		} else {
			e.finishTask(ctx, workflow, task, nil, attemptCtx.Err())
		}
	}
}

// finishTask records the outcome of one attempt. A task flipped to
// cancelled while running keeps that status; the late outcome is dropped.
func (e *Engine) finishTask(ctx context.Context, workflow *model.Workflow, task *model.Task, result interface{}, err error) {
	e.mu.Lock()
	now := time.Now()
	task.CompletedAt = &now
	if task.Status == model.TaskStatusRunning {
		if err != nil {
			task.Status = model.TaskStatusFailed
			task.ErrorMessage = err.Error()
		} else {
			task.Status = model.TaskStatusCompleted
			task.Result = result
		}
	}
	status := task.Status
	e.mu.Unlock()

	switch status {
	case model.TaskStatusFailed:
		e.logger.Warn("Task failed",
			zap.String("workflow_id", workflow.ID),
			zap.String("task_id", task.ID),
			zap.Int("attempt", task.RetryCount+1),
			zap.String("error", task.ErrorMessage))
	default:
		e.logger.Debug("Task finished",
			zap.String("workflow_id", workflow.ID),
			zap.String("task_id", task.ID),
			zap.String("status", string(status)))
	}

	e.publishTaskEvent(workflow.ID, task)
	e.recordRun(ctx, workflow.ID, task)
}

// recordRun persists one finished attempt to the run history store.
func (e *Engine) recordRun(ctx context.Context, workflowID string, task *model.Task) {
	if e.history == nil {
		return
	}

	run := &storage.TaskRun{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		TaskID:      task.ID,
		Name:        task.Name,
		Attempt:     task.RetryCount + 1,
		Status:      task.Status,
		Error:       task.ErrorMessage,
		CompletedAt: task.CompletedAt,
	}
	if task.StartedAt != nil {
		run.StartedAt = *task.StartedAt
		if task.CompletedAt != nil {
			run.Duration = task.CompletedAt.Sub(*task.StartedAt)
		}
	}
	if task.Result != nil {
		if data, marshalErr := json.Marshal(task.Result); marshalErr == nil {
			run.Result = data
		}
	}

	if err := e.history.Record(ctx, run); err != nil {
		e.logger.Error("Failed to record task run",
			zap.String("workflow_id", workflowID),
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

func (e *Engine) summarize(workflow *model.Workflow, start time.Time) *ExecutionSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := workflow.TaskCounts()
	return &ExecutionSummary{
		WorkflowID:     workflow.ID,
		Status:         workflow.Status,
		CompletedTasks: counts[model.TaskStatusCompleted],
		FailedTasks:    counts[model.TaskStatusFailed],
		TotalTasks:     len(workflow.Tasks),
		Duration:       time.Since(start),
	}
}
