package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/voicegate/voicegate/internal/database/models"
)

type taskRepo struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *DB) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) Create(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, agent_name, description, status, result, error,
		 progress, caller_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.AgentName, task.Description, task.Status, task.Result,
		task.Error, task.Progress, task.CallerID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (r *taskRepo) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, agent_name, description, status, result, error, progress,
		 caller_id, created_at, updated_at FROM tasks WHERE id = ?`, id,
	)
	return scanTask(row)
}

func (r *taskRepo) UpdateStatus(ctx context.Context, id, status, result, errMsg string, progress float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result = ?, error = ?, progress = ?,
		 updated_at = ? WHERE id = ?`,
		status, result, errMsg, progress, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

func (r *taskRepo) List(ctx context.Context, limit int) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_name, description, status, result, error, progress,
		 caller_id, created_at, updated_at FROM tasks
		 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepo) ListByStatus(ctx context.Context, status string) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_name, description, status, result, error, progress,
		 caller_id, created_at, updated_at FROM tasks
		 WHERE status = ? ORDER BY created_at DESC`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func scanTask(row *sql.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.AgentName, &t.Description, &t.Status, &t.Result,
		&t.Error, &t.Progress, &t.CallerID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.AgentName, &t.Description, &t.Status,
			&t.Result, &t.Error, &t.Progress, &t.CallerID, &t.CreatedAt,
			&t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}
