package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// TaskRun is one finished task attempt. The engine records a row per
// attempt, so a task retried twice leaves three rows.
type TaskRun struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	TaskID      string           `json:"task_id"`
	Name        string           `json:"name"`
	Attempt     int              `json:"attempt"`
	Status      model.TaskStatus `json:"status"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Duration    time.Duration    `json:"duration,omitempty"`
}

// RunHistoryStorage defines the interface for task run history storage
type RunHistoryStorage interface {
	// Record stores one finished task attempt
	Record(ctx context.Context, run *TaskRun) error

	// Get retrieves a run record by ID
	Get(ctx context.Context, id string) (*TaskRun, error)

	// ListByWorkflow retrieves run records for a workflow, newest first
	ListByWorkflow(ctx context.Context, workflowID string, offset, limit int) ([]*TaskRun, error)

	// CountByStatus returns the number of records per status for a workflow
	CountByStatus(ctx context.Context, workflowID string) (map[model.TaskStatus]int, error)

	// DeleteBefore deletes records older than the specified time
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteRunHistory implements RunHistoryStorage using SQLite
type SQLiteRunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRunHistory opens (or creates) a SQLite-backed run history store.
func NewSQLiteRunHistory(logger *zap.Logger, dbPath string) (*SQLiteRunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteRunHistory{
		logger: logger.Named("run-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteRunHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			name TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_task_runs_workflow_id ON task_runs(workflow_id);
		CREATE INDEX IF NOT EXISTS idx_task_runs_task_id ON task_runs(task_id);
		CREATE INDEX IF NOT EXISTS idx_task_runs_status ON task_runs(status);
		CREATE INDEX IF NOT EXISTS idx_task_runs_started_at ON task_runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Record implements RunHistoryStorage.Record
func (s *SQLiteRunHistory) Record(ctx context.Context, run *TaskRun) error {
	var resultStr string
	if len(run.Result) > 0 {
		resultStr = string(run.Result)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_runs (
			id, workflow_id, task_id, name, attempt, status,
			result, error, started_at, completed_at, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.WorkflowID,
		run.TaskID,
		run.Name,
		run.Attempt,
		run.Status,
		sql.NullString{String: resultStr, Valid: resultStr != ""},
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.StartedAt,
		sql.NullTime{Time: derefTime(run.CompletedAt), Valid: run.CompletedAt != nil},
		sql.NullInt64{Int64: int64(run.Duration), Valid: run.Duration != 0},
	)
	if err != nil {
		return fmt.Errorf("failed to record task run: %w", err)
	}
	return nil
}

// Get implements RunHistoryStorage.Get
func (s *SQLiteRunHistory) Get(ctx context.Context, id string) (*TaskRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, task_id, name, attempt, status,
			result, error, started_at, completed_at, duration
		FROM task_runs
		WHERE id = ?`, id)

	run, err := scanTaskRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan task run: %w", err)
	}
	return run, nil
}

// ListByWorkflow implements RunHistoryStorage.ListByWorkflow
func (s *SQLiteRunHistory) ListByWorkflow(ctx context.Context, workflowID string, offset, limit int) ([]*TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, task_id, name, attempt, status,
			result, error, started_at, completed_at, duration
		FROM task_runs
		WHERE workflow_id = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`, workflowID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		run, err := scanTaskRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// CountByStatus implements RunHistoryStorage.CountByStatus
func (s *SQLiteRunHistory) CountByStatus(ctx context.Context, workflowID string) (map[model.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM task_runs
		WHERE workflow_id = ?
		GROUP BY status`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to count task runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status model.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return counts, nil
}

// DeleteBefore implements RunHistoryStorage.DeleteBefore
func (s *SQLiteRunHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM task_runs WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete task runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old task run records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteRunHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskRun(row rowScanner) (*TaskRun, error) {
	run := &TaskRun{}
	var result, errorStr sql.NullString
	var completedAt sql.NullTime
	var durationNanos sql.NullInt64

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.TaskID,
		&run.Name,
		&run.Attempt,
		&run.Status,
		&result,
		&errorStr,
		&run.StartedAt,
		&completedAt,
		&durationNanos,
	)
	if err != nil {
		return nil, err
	}

	if result.Valid && result.String != "" {
		run.Result = json.RawMessage(result.String)
	}
	if errorStr.Valid {
		run.Error = errorStr.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if durationNanos.Valid {
		run.Duration = time.Duration(durationNanos.Int64)
	}
	return run, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
