package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

var datasetColumns = []string{
	"id", "sequence", "name", "folder", "database_id", "version", "icon", "task_id", "state", "created_at", "updated_at",
}

var terminalStates = []string{string(models.StateSuccess), string(models.StateFailure)}

// DatasetRepository implements models.Repository[*models.Dataset].
//
// Queries are assembled with squirrel so List can compose optional filters.
type DatasetRepository struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// NewDatasetRepository creates a new DatasetRepository with the given database connection
func NewDatasetRepository(db *sql.DB) *DatasetRepository {
	return &DatasetRepository{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Create inserts a new [models.Dataset] with a generated ID and sequence.
func (r *DatasetRepository) Create(ctx context.Context, d *models.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	sequence, err := NextSequence(ctx, r.db, "datasets")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if d.ID() == "" {
		d.SetID(shared.GenerateID())
	}
	d.SetSequence(sequence)

	query, args, err := r.qb.Insert("datasets").
		Columns(datasetColumns...).
		Values(
			d.ID(), sequence, d.Name(), d.Folder(), d.DatabaseID(), d.Version(), d.Icon(),
			d.TaskID(), string(d.State()), d.CreatedAt(), d.UpdatedAt(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}

	return nil
}

// Get retrieves a dataset by ID. Missing rows wrap [shared.ErrNotFound].
func (r *DatasetRepository) Get(ctx context.Context, id string) (*models.Dataset, error) {
	query, args, err := r.qb.Select(datasetColumns...).
		From("datasets").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	d, err := scanDataset(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dataset %s", shared.ErrNotFound, id)
	}
	return d, err
}

// List retrieves datasets ordered by creation sequence.
//
// Supported criteria: "state" ([models.State] or []models.State), "has_task" (bool), "database_id" (string).
func (r *DatasetRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Dataset, error) {
	qb := r.qb.Select(datasetColumns...).From("datasets")

	switch st := criteria["state"].(type) {
	case models.State:
		qb = qb.Where(sq.Eq{"state": string(st)})
	case []models.State:
		states := make([]string, len(st))
		for i, s := range st {
			states[i] = string(s)
		}
		qb = qb.Where(sq.Eq{"state": states})
	}

	if hasTask, ok := criteria["has_task"].(bool); ok {
		if hasTask {
			qb = qb.Where(sq.NotEq{"task_id": ""})
		} else {
			qb = qb.Where(sq.Eq{"task_id": ""})
		}
	}

	if dbID, ok := criteria["database_id"].(string); ok && dbID != "" {
		qb = qb.Where(sq.Eq{"database_id": dbID})
	}

	query, args, err := qb.OrderBy("sequence ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return datasets, nil
}

// Update writes the mutable fields of d. A vanished row wraps [shared.ErrNotFound].
func (r *DatasetRepository) Update(ctx context.Context, d *models.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	now := time.Now().UTC()

	query, args, err := r.qb.Update("datasets").
		Set("folder", d.Folder()).
		Set("icon", d.Icon()).
		Set("task_id", d.TaskID()).
		Set("state", string(d.State())).
		Set("updated_at", now).
		Where(sq.Eq{"id": d.ID()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: dataset %s", shared.ErrNotFound, d.ID())
	}

	d.SetUpdatedAt(now)
	return nil
}

// UpdateState persists a reconciled state and returns the row as stored.
//
// A terminal state already in the table is never replaced by a non-terminal one, so
// concurrent reconciliations cannot regress a finished dataset. folder only fills an
// empty column.
func (r *DatasetRepository) UpdateState(ctx context.Context, id string, state models.State, folder string) (*models.Dataset, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: invalid state %q", shared.ErrValidation, state)
	}

	qb := r.qb.Update("datasets").
		Set("state", string(state)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	if folder != "" {
		qb = qb.Set("folder", sq.Expr("CASE WHEN folder = '' THEN ? ELSE folder END", folder))
	}
	if !state.IsTerminal() {
		qb = qb.Where(sq.NotEq{"state": terminalStates})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update dataset state: %w", err)
	}

	return r.Get(ctx, id)
}

func scanDataset(row rowScanner) (*models.Dataset, error) {
	var (
		id, name, folder, databaseID, version, icon, taskID, state string
		sequence                                                   int
		createdAt, updatedAt                                       time.Time
	)

	err := row.Scan(&id, &sequence, &name, &folder, &databaseID, &version, &icon, &taskID, &state, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}

	st, err := models.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}

	params := models.DatasetParams{Name: name, Folder: folder, DatabaseID: databaseID, Version: version, Icon: icon}
	return models.RestoreDataset(id, sequence, params, taskID, st, createdAt, updatedAt), nil
}
