package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicegate/voicegate/internal/database/models"
)

type ideaRepo struct {
	db *DB
}

// NewIdeaRepository creates a new IdeaRepository.
func NewIdeaRepository(db *DB) IdeaRepository {
	return &ideaRepo{db: db}
}

func (r *ideaRepo) Create(ctx context.Context, idea *models.Idea) error {
	now := time.Now().UTC()
	idea.CreatedAt = now
	idea.UpdatedAt = now
	if idea.Notes == "" {
		idea.Notes = "[]"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ideas (id, title, description, category, priority, status,
		 notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.Title, idea.Description, idea.Category, idea.Priority,
		idea.Status, idea.Notes, idea.CreatedAt, idea.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting idea: %w", err)
	}
	return nil
}

func (r *ideaRepo) GetByID(ctx context.Context, id string) (*models.Idea, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, category, priority, status, notes,
		 created_at, updated_at FROM ideas WHERE id = ?`, id,
	)

	var i models.Idea
	err := row.Scan(&i.ID, &i.Title, &i.Description, &i.Category, &i.Priority,
		&i.Status, &i.Notes, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning idea: %w", err)
	}
	return &i, nil
}

func (r *ideaRepo) List(ctx context.Context, limit int) ([]models.Idea, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, category, priority, status, notes,
		 created_at, updated_at FROM ideas
		 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing ideas: %w", err)
	}
	defer rows.Close()

	var ideas []models.Idea
	for rows.Next() {
		var i models.Idea
		if err := rows.Scan(&i.ID, &i.Title, &i.Description, &i.Category,
			&i.Priority, &i.Status, &i.Notes, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning idea row: %w", err)
		}
		ideas = append(ideas, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating idea rows: %w", err)
	}
	return ideas, nil
}

// AppendNote adds a note to the idea's note log and bumps updated_at.
func (r *ideaRepo) AppendNote(ctx context.Context, id, note string) error {
	idea, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if idea == nil {
		return fmt.Errorf("idea %s not found", id)
	}

	var notes []string
	if err := json.Unmarshal([]byte(idea.Notes), &notes); err != nil {
		notes = nil
	}
	notes = append(notes, note)
	encoded, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encoding notes: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE ideas SET notes = ?, updated_at = ? WHERE id = ?",
		string(encoded), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating idea notes: %w", err)
	}
	return nil
}

func (r *ideaRepo) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE ideas SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating idea status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating idea status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("idea %s not found", id)
	}
	return nil
}
