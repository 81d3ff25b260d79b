package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/event"
	"github.com/t77yq/flowforge/internal/model"
	"github.com/t77yq/flowforge/internal/testutil"
)

func TestAlertManagerWorkflowFailure(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	logger := zap.NewNop()

	// The publisher owns the stream the alert manager subscribes to.
	publisher, err := event.NewPublisher(js, logger)
	require.NoError(t, err)

	manager := NewAlertManager(js, logger)
	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	rule := &model.AlertRule{
		Name:     "workflow-failures",
		Type:     model.AlertTypeWorkflowFailure,
		Severity: model.AlertSeverityError,
	}
	require.NoError(t, manager.AddRule(rule))

	publisher.PublishWorkflowEvent(model.WorkflowEvent{
		WorkflowID:  "wf1",
		Name:        "Pipeline",
		Status:      model.WorkflowStatusFailed,
		FailedTasks: 2,
		TotalTasks:  5,
		Timestamp:   time.Now(),
	})

	messages, err := testutil.ConsumeMessages(js, "alert.workflow_failure", 3*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var alert model.Alert
	require.NoError(t, json.Unmarshal(messages[0], &alert))
	assert.Equal(t, rule.ID, alert.RuleID)
	assert.Equal(t, model.AlertTypeWorkflowFailure, alert.Type)
	assert.Equal(t, model.AlertSeverityError, alert.Severity)
	assert.Equal(t, "wf1", alert.Data["workflow_id"])
}

func TestAlertManagerTaskFailure(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	logger := zap.NewNop()
	publisher, err := event.NewPublisher(js, logger)
	require.NoError(t, err)

	manager := NewAlertManager(js, logger)
	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	require.NoError(t, manager.AddRule(&model.AlertRule{
		Name:     "task-failures",
		Type:     model.AlertTypeTaskFailure,
		Severity: model.AlertSeverityWarning,
	}))

	// Completed tasks never fire the rule.
	publisher.PublishTaskEvent(model.TaskEvent{
		WorkflowID: "wf1",
		TaskID:     "fine",
		Status:     model.TaskStatusCompleted,
		Timestamp:  time.Now(),
	})
	publisher.PublishTaskEvent(model.TaskEvent{
		WorkflowID: "wf1",
		TaskID:     "broken",
		Status:     model.TaskStatusFailed,
		Error:      "boom",
		Timestamp:  time.Now(),
	})

	messages, err := testutil.ConsumeMessages(js, "alert.task_failure", 3*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var alert model.Alert
	require.NoError(t, json.Unmarshal(messages[0], &alert))
	assert.Equal(t, "broken", alert.Data["task_id"])
	assert.Equal(t, "boom", alert.Data["error"])
}

func TestAlertManagerSilencedRule(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	logger := zap.NewNop()
	publisher, err := event.NewPublisher(js, logger)
	require.NoError(t, err)

	manager := NewAlertManager(js, logger)
	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	require.NoError(t, manager.AddRule(&model.AlertRule{
		Name:     "silenced",
		Type:     model.AlertTypeWorkflowFailure,
		Severity: model.AlertSeverityError,
		Silenced: true,
	}))

	publisher.PublishWorkflowEvent(model.WorkflowEvent{
		WorkflowID: "wf1",
		Status:     model.WorkflowStatusFailed,
		Timestamp:  time.Now(),
	})

	messages, err := testutil.ConsumeMessages(js, "alert.workflow_failure", 2*time.Second)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestAlertManagerRuleLifecycle(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	_, err := event.NewPublisher(js, zap.NewNop())
	require.NoError(t, err)

	manager := NewAlertManager(js, zap.NewNop())
	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	rule := &model.AlertRule{
		Name:     "lifecycle",
		Type:     model.AlertTypeWorkflowFailure,
		Severity: model.AlertSeverityInfo,
	}
	require.NoError(t, manager.AddRule(rule))
	require.NotEmpty(t, rule.ID)

	got, err := manager.GetRule(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "lifecycle", got.Name)

	require.NoError(t, manager.DeleteRule(rule.ID))

	_, err = manager.GetRule(rule.ID)
	assert.Error(t, err)
	assert.Error(t, manager.DeleteRule(rule.ID))
}
