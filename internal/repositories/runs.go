package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/shared"
)

const taskRunColumns = `
	id, sequence, name, dry_run, status, scanned, changed, skipped, failed,
	error_message, started_at, completed_at, created_at, updated_at, deleted_at
`

// TaskRunRepository implements models.Repository[*models.TaskRun] for the task ledger.
type TaskRunRepository struct {
	db *sql.DB
}

// NewTaskRunRepository creates a new TaskRunRepository with the given database connection
func NewTaskRunRepository(db *sql.DB) *TaskRunRepository {
	return &TaskRunRepository{db: db}
}

// Create inserts a new task run with generated ID and sequence
func (r *TaskRunRepository) Create(run *models.TaskRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "task_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	query := `
		INSERT INTO task_runs (
			id, sequence, name, dry_run, status, scanned, changed, skipped, failed,
			error_message, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID(),
		sequence,
		run.Name(),
		run.DryRun(),
		run.Status(),
		run.Scanned(),
		run.Changed(),
		run.Skipped(),
		run.Failed(),
		nullString(run.ErrorMessage()),
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", err)
	}

	return nil
}

// Get retrieves a task run by ID, excluding soft-deleted runs
func (r *TaskRunRepository) Get(id string) (*models.TaskRun, error) {
	query := `SELECT ` + taskRunColumns + ` FROM task_runs WHERE id = ? AND deleted_at IS NULL`

	run, err := r.scan(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: task run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Update writes the run's status, counts and completion time
func (r *TaskRunRepository) Update(run *models.TaskRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE task_runs
		SET status = ?, scanned = ?, changed = ?, skipped = ?, failed = ?,
			error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		run.Status(),
		run.Scanned(),
		run.Changed(),
		run.Skipped(),
		run.Failed(),
		nullString(run.ErrorMessage()),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update task run: %w", err)
	}

	return expectRow(result, "task run", run.ID())
}

// Delete soft-deletes a task run by ID
func (r *TaskRunRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE task_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete task run: %w", err)
	}
	return expectRow(result, "task run", id)
}

// List retrieves task runs newest first. Supported criteria are "name", "status" and "limit".
func (r *TaskRunRepository) List(criteria map[string]any) ([]*models.TaskRun, error) {
	query := `SELECT ` + taskRunColumns + ` FROM task_runs WHERE deleted_at IS NULL`
	args := []any{}

	if name, ok := criteria["name"].(string); ok && name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TaskRun
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

func (r *TaskRunRepository) scan(row scanner) (*models.TaskRun, error) {
	var (
		id           string
		sequence     int
		name         string
		dryRun       bool
		status       string
		scanned      int
		changed      int
		skipped      int
		failed       int
		errorMessage sql.NullString
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &name, &dryRun, &status, &scanned, &changed, &skipped, &failed,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task run: %w", err)
	}

	run := models.NewTaskRun(sequence, name, dryRun)
	run.SetID(id)
	run.SetStatus(status)
	run.SetCounts(scanned, changed, skipped, failed)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if errorMessage.Valid {
		run.SetErrorMessage(errorMessage.String)
	}
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}
