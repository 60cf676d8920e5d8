package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/voicegate/voicegate/internal/database/models"
)

type projectRepo struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *DB) ProjectRepository {
	return &projectRepo{db: db}
}

func (r *projectRepo) Create(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, title, description, status, plan, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Title, project.Description, project.Status,
		project.Plan, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func (r *projectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, plan, created_at, updated_at
		 FROM projects WHERE id = ?`, id,
	)

	var p models.Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Status, &p.Plan,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	return &p, nil
}

func (r *projectRepo) List(ctx context.Context, limit int) ([]models.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, status, plan, created_at, updated_at
		 FROM projects ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Status,
			&p.Plan, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return projects, nil
}

func (r *projectRepo) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET title = ?, description = ?, status = ?, plan = ?,
		 updated_at = ? WHERE id = ?`,
		project.Title, project.Description, project.Status, project.Plan,
		project.UpdatedAt, project.ID,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s not found", project.ID)
	}
	return nil
}
