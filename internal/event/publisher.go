package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

const (
	workflowStreamName    = "WORKFLOWS"
	taskStatusSubject     = "task.status"
	workflowStatusSubject = "workflow.status"

	streamMaxAge  = 24 * time.Hour
	streamMaxMsgs = -1
)

// Publisher emits task and workflow status changes to JetStream. It
// implements engine.EventSink; publish failures are logged, never
// surfaced to the engine.
type Publisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewPublisher creates the workflow event stream and returns a publisher.
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		logger: logger.Named("events"),
		js:     js,
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     workflowStreamName,
		Subjects: []string{"task.*", "workflow.*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  streamMaxMsgs,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			p.logger.Info("Stream already exists", zap.String("stream", workflowStreamName))
			return p, nil
		}
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("Stream created successfully", zap.String("stream", workflowStreamName))
	return p, nil
}

// PublishTaskEvent publishes a task status change.
func (p *Publisher) PublishTaskEvent(event model.TaskEvent) {
	p.publish(taskStatusSubject, event)
}

// PublishWorkflowEvent publishes a workflow status change.
func (p *Publisher) PublishWorkflowEvent(event model.WorkflowEvent) {
	p.publish(workflowStatusSubject, event)
}

func (p *Publisher) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
