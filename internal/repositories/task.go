package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `id, kind, state, payload, result_folder, message, created_at, updated_at, started_at, finished_at`

// TaskRepository is the status store for acquisition jobs.
//
// The worker writes transitions here and the reconciler reads them back through [TaskRepository.Status].
// Transitions out of a terminal state are ignored.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new TaskRepository with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: sqlx.NewDb(db, "sqlite3")}
}

// Create records a new PENDING task for job.
func (r *TaskRepository) Create(ctx context.Context, job models.Job) (*models.TaskRecord, error) {
	payload, err := job.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	now := time.Now().UTC()
	rec := &models.TaskRecord{
		ID:        job.TaskID,
		Kind:      job.Kind,
		State:     models.StatePending,
		Payload:   string(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	query := `
		INSERT INTO tasks (id, kind, state, payload, result_folder, message, created_at, updated_at)
		VALUES (:id, :kind, :state, :payload, :result_folder, :message, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return rec, nil
}

// Get retrieves a task by ID. Missing rows wrap [shared.ErrNotFound].
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	var rec models.TaskRecord
	err := r.db.GetContext(ctx, &rec, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &rec, nil
}

// Status returns the reported status of taskID.
func (r *TaskRepository) Status(ctx context.Context, taskID string) (models.TaskStatus, error) {
	rec, err := r.Get(ctx, taskID)
	if err != nil {
		return models.TaskStatus{}, err
	}
	return rec.Status(), nil
}

// MarkStarted moves a PENDING task to STARTED.
func (r *TaskRepository) MarkStarted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, `
		UPDATE tasks SET state = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND state IN ('PENDING', 'STARTED')
	`, models.StateStarted, now, now, id)
}

// Complete marks a task SUCCESS with the folder its content landed in.
func (r *TaskRepository) Complete(ctx context.Context, id, folder string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, `
		UPDATE tasks SET state = ?, result_folder = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND state NOT IN ('SUCCESS', 'FAILURE')
	`, models.StateSuccess, folder, now, now, id)
}

// Fail marks a task FAILURE with message.
func (r *TaskRepository) Fail(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, `
		UPDATE tasks SET state = ?, message = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND state NOT IN ('SUCCESS', 'FAILURE')
	`, models.StateFailure, message, now, now, id)
}

// ListIncomplete returns PENDING and STARTED tasks, oldest first.
func (r *TaskRepository) ListIncomplete(ctx context.Context) ([]models.TaskRecord, error) {
	var recs []models.TaskRecord
	err := r.db.SelectContext(ctx, &recs,
		"SELECT "+taskColumns+" FROM tasks WHERE state IN ('PENDING', 'STARTED') ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return recs, nil
}

// transition runs a guarded update. Zero affected rows is only an error when the task does not exist.
func (r *TaskRepository) transition(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM tasks WHERE id = ?)", id); err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	return nil
}
