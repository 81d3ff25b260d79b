package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/engine"
	"github.com/t77yq/flowforge/internal/model"
)

type countingRunner struct {
	executions int32
	lastID     atomic.Value
}

func (r *countingRunner) ExecuteWorkflow(ctx context.Context, workflowID string) (*engine.ExecutionSummary, error) {
	atomic.AddInt32(&r.executions, 1)
	r.lastID.Store(workflowID)
	return &engine.ExecutionSummary{
		WorkflowID: workflowID,
		Status:     model.WorkflowStatusCompleted,
	}, nil
}

func TestCronSchedulerRunsWorkflow(t *testing.T) {
	runner := &countingRunner{}
	scheduler := NewCronScheduler(runner, nil, zap.NewNop())

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	schedule := &model.WorkflowSchedule{
		Name:       "every-second",
		WorkflowID: "wf1",
		Expression: "* * * * * *",
	}
	require.NoError(t, scheduler.AddSchedule(schedule))
	require.NotEmpty(t, schedule.ID)
	require.NotNil(t, schedule.NextRunTime)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.executions) >= 2
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "wf1", runner.lastID.Load())
	assert.NotNil(t, schedule.LastRunTime)
}

func TestCronSchedulerInvalidExpression(t *testing.T) {
	scheduler := NewCronScheduler(&countingRunner{}, nil, zap.NewNop())

	err := scheduler.AddSchedule(&model.WorkflowSchedule{
		Name:       "broken",
		WorkflowID: "wf1",
		Expression: "not a cron expression",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
	assert.Empty(t, scheduler.ListSchedules())
}

func TestCronSchedulerScheduleLifecycle(t *testing.T) {
	scheduler := NewCronScheduler(&countingRunner{}, nil, zap.NewNop())

	schedule := &model.WorkflowSchedule{
		Name:       "hourly",
		WorkflowID: "wf1",
		Expression: "0 0 * * * *",
	}
	require.NoError(t, scheduler.AddSchedule(schedule))

	got, err := scheduler.GetSchedule(schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, "hourly", got.Name)

	all := scheduler.ListSchedules()
	require.Len(t, all, 1)

	require.NoError(t, scheduler.RemoveSchedule(schedule.ID))

	_, err = scheduler.GetSchedule(schedule.ID)
	assert.Error(t, err)
	assert.Error(t, scheduler.RemoveSchedule(schedule.ID))
	assert.Empty(t, scheduler.ListSchedules())
}
