package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// AlertManager watches workflow and task status events and raises alerts
// according to its rules.
type AlertManager struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	rules  sync.Map
	subs   []*nats.Subscription
}

// NewAlertManager creates a new alert manager
func NewAlertManager(js nats.JetStreamContext, logger *zap.Logger) *AlertManager {
	return &AlertManager{
		logger: logger.Named("alert-manager"),
		js:     js,
	}
}

// Start starts the alert manager
func (m *AlertManager) Start(ctx context.Context) error {
	// Create stream for alerts
	stream, err := m.js.StreamInfo("ALERTS")
	if err != nil && err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = m.js.AddStream(&nats.StreamConfig{
			Name:     "ALERTS",
			Subjects: []string{"alert.*"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	// Subscribe to workflow status events
	wfSub, err := m.js.Subscribe("workflow.status", m.handleWorkflowEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to workflow events: %w", err)
	}
	m.subs = append(m.subs, wfSub)

	// Subscribe to task status events
	taskSub, err := m.js.Subscribe("task.status", m.handleTaskEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to task events: %w", err)
	}
	m.subs = append(m.subs, taskSub)

	m.logger.Info("Alert manager started")
	return nil
}

// Stop stops the alert manager
func (m *AlertManager) Stop() {
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
}

// AddRule adds a new alert rule
func (m *AlertManager) AddRule(rule *model.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules.Store(rule.ID, rule)
	return nil
}

// DeleteRule deletes an alert rule
func (m *AlertManager) DeleteRule(id string) error {
	if _, ok := m.rules.Load(id); !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	m.rules.Delete(id)
	return nil
}

// GetRule returns a rule by ID
func (m *AlertManager) GetRule(id string) (*model.AlertRule, error) {
	value, ok := m.rules.Load(id)
	if !ok {
		return nil, fmt.Errorf("rule not found: %s", id)
	}
	return value.(*model.AlertRule), nil
}

// handleWorkflowEvent raises alerts for failed workflows
func (m *AlertManager) handleWorkflowEvent(msg *nats.Msg) {
	var event model.WorkflowEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		m.logger.Error("Failed to unmarshal workflow event", zap.Error(err))
		return
	}

	if event.Status != model.WorkflowStatusFailed {
		return
	}

	m.matchRules(model.AlertTypeWorkflowFailure, map[string]interface{}{
		"workflow_id":  event.WorkflowID,
		"failed_tasks": event.FailedTasks,
		"total_tasks":  event.TotalTasks,
	})
}

// handleTaskEvent raises alerts for failed tasks
func (m *AlertManager) handleTaskEvent(msg *nats.Msg) {
	var event model.TaskEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		m.logger.Error("Failed to unmarshal task event", zap.Error(err))
		return
	}

	if event.Status != model.TaskStatusFailed {
		return
	}

	m.matchRules(model.AlertTypeTaskFailure, map[string]interface{}{
		"workflow_id": event.WorkflowID,
		"task_id":     event.TaskID,
		"error":       event.Error,
		"retry_count": event.RetryCount,
	})
}

// matchRules fires every non-silenced rule of the given type
func (m *AlertManager) matchRules(alertType model.AlertType, data map[string]interface{}) {
	m.rules.Range(func(_, value interface{}) bool {
		rule := value.(*model.AlertRule)
		if rule.Type == alertType && !rule.Silenced {
			if err := m.createAlert(rule, data); err != nil {
				m.logger.Error("Failed to create alert",
					zap.String("rule_id", rule.ID),
					zap.Error(err))
			}
		}
		return true
	})
}

// createAlert creates and publishes a new alert
func (m *AlertManager) createAlert(rule *model.AlertRule, data map[string]interface{}) error {
	alert := &model.Alert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Type:      rule.Type,
		Severity:  rule.Severity,
		Message:   fmt.Sprintf("Alert triggered for rule: %s", rule.Name),
		Data:      data,
		CreatedAt: time.Now(),
	}

	alertData, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := m.js.Publish("alert."+string(alert.Type), alertData); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	m.logger.Info("Alert created",
		zap.String("id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))

	return nil
}
