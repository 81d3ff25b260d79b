package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/engine"
	"github.com/t77yq/flowforge/internal/model"
)

const (
	scheduleStreamName    = "SCHEDULES"
	scheduleAddSubject    = "schedule.add"
	scheduleRemoveSubject = "schedule.remove"
)

// WorkflowRunner triggers workflow executions. Satisfied by *engine.Engine.
type WorkflowRunner interface {
	ExecuteWorkflow(ctx context.Context, workflowID string) (*engine.ExecutionSummary, error)
}

// CronScheduler triggers workflow executions on cron expressions.
type CronScheduler struct {
	logger    *zap.Logger
	js        nats.JetStreamContext
	runner    WorkflowRunner
	cron      *cron.Cron
	schedules sync.Map
	entryIDs  sync.Map
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronScheduler creates a scheduler that runs workflows through runner.
// js may be nil when schedule management over NATS is not needed.
func NewCronScheduler(runner WorkflowRunner, js nats.JetStreamContext, logger *zap.Logger) *CronScheduler {
	cl := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cl)),
	}

	return &CronScheduler{
		logger: logger.Named("cron-scheduler"),
		js:     js,
		runner: runner,
		cron:   cron.New(cronOptions...),
	}
}

// Start starts the scheduler and, when connected to JetStream, subscribes
// to schedule management commands.
func (s *CronScheduler) Start(ctx context.Context) error {
	if s.js != nil {
		if err := s.setupStream(); err != nil {
			return err
		}
		if err := s.subscribeToCommands(ctx); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for in-flight jobs to finish.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// AddSchedule adds a new schedule
func (s *CronScheduler) AddSchedule(schedule *model.WorkflowSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}
	schedule.UpdatedAt = time.Now()

	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := specParser.Parse(schedule.Expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.schedules.Store(schedule.ID, schedule)

	entryID, err := s.cron.AddJob(schedule.Expression, &cronJob{
		scheduler: s,
		schedule:  schedule,
	})
	if err != nil {
		s.schedules.Delete(schedule.ID)
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryIDs.Store(schedule.ID, entryID)

	next := spec.Next(time.Now())
	schedule.NextRunTime = &next

	s.logger.Info("Added schedule",
		zap.String("id", schedule.ID),
		zap.String("workflow_id", schedule.WorkflowID),
		zap.String("expression", schedule.Expression),
		zap.Time("next_run", next))

	return nil
}

// RemoveSchedule removes a schedule
func (s *CronScheduler) RemoveSchedule(id string) error {
	entryIDVal, ok := s.entryIDs.Load(id)
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}

	s.cron.Remove(entryIDVal.(cron.EntryID))
	s.entryIDs.Delete(id)
	s.schedules.Delete(id)

	s.logger.Info("Removed schedule", zap.String("id", id))
	return nil
}

// GetSchedule gets a schedule by ID
func (s *CronScheduler) GetSchedule(id string) (*model.WorkflowSchedule, error) {
	val, ok := s.schedules.Load(id)
	if !ok {
		return nil, fmt.Errorf("schedule not found: %s", id)
	}
	return val.(*model.WorkflowSchedule), nil
}

// ListSchedules lists all schedules
func (s *CronScheduler) ListSchedules() []*model.WorkflowSchedule {
	var schedules []*model.WorkflowSchedule
	s.schedules.Range(func(key, value interface{}) bool {
		schedules = append(schedules, value.(*model.WorkflowSchedule))
		return true
	})
	return schedules
}

func (s *CronScheduler) setupStream() error {
	_, err := s.js.StreamInfo(scheduleStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("failed to get stream info: %w", err)
		}

		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:     scheduleStreamName,
			Subjects: []string{"schedule.*"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			MaxMsgs:  -1,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		s.logger.Info("Created schedule stream", zap.String("name", scheduleStreamName))
	} else {
		s.logger.Info("Using existing schedule stream", zap.String("name", scheduleStreamName))
	}
	return nil
}

// subscribeToCommands subscribes to schedule management commands
func (s *CronScheduler) subscribeToCommands(ctx context.Context) error {
	if _, err := s.js.Subscribe(scheduleAddSubject, func(msg *nats.Msg) {
		var schedule model.WorkflowSchedule
		if err := json.Unmarshal(msg.Data, &schedule); err != nil {
			s.logger.Error("Failed to unmarshal schedule", zap.Error(err))
			return
		}

		if err := s.AddSchedule(&schedule); err != nil {
			s.logger.Error("Failed to add schedule", zap.Error(err))
			return
		}
	}, nats.Durable("schedule-add-consumer")); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", scheduleAddSubject, err)
	}

	if _, err := s.js.Subscribe(scheduleRemoveSubject, func(msg *nats.Msg) {
		var id string
		if err := json.Unmarshal(msg.Data, &id); err != nil {
			s.logger.Error("Failed to unmarshal schedule ID", zap.Error(err))
			return
		}

		if err := s.RemoveSchedule(id); err != nil {
			s.logger.Error("Failed to remove schedule", zap.Error(err))
			return
		}
	}, nats.Durable("schedule-remove-consumer")); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", scheduleRemoveSubject, err)
	}

	return nil
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	schedule  *model.WorkflowSchedule
}

// Run triggers one workflow execution.
func (j *cronJob) Run() {
	now := time.Now()
	j.schedule.LastRunTime = &now

	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if spec, err := specParser.Parse(j.schedule.Expression); err == nil {
		next := spec.Next(now)
		j.schedule.NextRunTime = &next
	}

	summary, err := j.scheduler.runner.ExecuteWorkflow(context.Background(), j.schedule.WorkflowID)
	if err != nil {
		j.scheduler.logger.Error("Scheduled workflow execution failed",
			zap.String("schedule_id", j.schedule.ID),
			zap.String("workflow_id", j.schedule.WorkflowID),
			zap.Error(err))
		return
	}

	j.scheduler.logger.Info("Scheduled workflow executed",
		zap.String("schedule_id", j.schedule.ID),
		zap.String("workflow_id", j.schedule.WorkflowID),
		zap.String("status", string(summary.Status)),
		zap.Duration("duration", summary.Duration))
}
