package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
	"github.com/t77yq/flowforge/internal/testutil"
)

func TestPublisherTaskEvents(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	publisher, err := NewPublisher(js, zap.NewNop())
	require.NoError(t, err)

	publisher.PublishTaskEvent(model.TaskEvent{
		WorkflowID: "wf1",
		TaskID:     "extract",
		Name:       "Extract",
		Status:     model.TaskStatusRunning,
		Timestamp:  time.Now(),
	})
	publisher.PublishTaskEvent(model.TaskEvent{
		WorkflowID: "wf1",
		TaskID:     "extract",
		Name:       "Extract",
		Status:     model.TaskStatusCompleted,
		Timestamp:  time.Now(),
	})

	messages, err := testutil.ConsumeMessages(js, "task.status", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	var first model.TaskEvent
	require.NoError(t, json.Unmarshal(messages[0], &first))
	assert.Equal(t, "wf1", first.WorkflowID)
	assert.Equal(t, "extract", first.TaskID)
	assert.Equal(t, model.TaskStatusRunning, first.Status)

	var second model.TaskEvent
	require.NoError(t, json.Unmarshal(messages[1], &second))
	assert.Equal(t, model.TaskStatusCompleted, second.Status)
}

func TestPublisherWorkflowEvents(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	publisher, err := NewPublisher(js, zap.NewNop())
	require.NoError(t, err)

	publisher.PublishWorkflowEvent(model.WorkflowEvent{
		WorkflowID:     "wf1",
		Name:           "Pipeline",
		Status:         model.WorkflowStatusCompleted,
		CompletedTasks: 4,
		TotalTasks:     4,
		Timestamp:      time.Now(),
	})

	messages, err := testutil.ConsumeMessages(js, "workflow.status", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var event model.WorkflowEvent
	require.NoError(t, json.Unmarshal(messages[0], &event))
	assert.Equal(t, "wf1", event.WorkflowID)
	assert.Equal(t, model.WorkflowStatusCompleted, event.Status)
	assert.Equal(t, 4, event.CompletedTasks)
}

func TestPublisherIdempotentStreamCreation(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	_, err := NewPublisher(js, zap.NewNop())
	require.NoError(t, err)

	// A second publisher against the same server reuses the stream.
	_, err = NewPublisher(js, zap.NewNop())
	require.NoError(t, err)
}
