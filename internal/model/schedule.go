package model

import (
	"time"
)

// WorkflowSchedule triggers a workflow execution on a cron expression.
type WorkflowSchedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	WorkflowID  string     `json:"workflow_id"`
	Expression  string     `json:"expression"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
