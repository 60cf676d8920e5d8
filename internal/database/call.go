package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voicegate/voicegate/internal/database/models"
)

// callRepo implements CallRepository.
type callRepo struct {
	db *DB
}

// NewCallRepository creates a new CallRepository.
func NewCallRepository(db *DB) CallRepository {
	return &callRepo{db: db}
}

// Create inserts a new call history entry at call start.
func (r *callRepo) Create(ctx context.Context, call *models.Call) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (id, caller_id, started_at, agents_used, outcome, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		call.ID, call.CallerID, call.StartedAt, call.AgentsUsed, call.Outcome, call.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}
	return nil
}

// Finish records the end of a call: end time, duration, agent path, outcome
// and accumulated cost.
func (r *callRepo) Finish(ctx context.Context, call *models.Call) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET ended_at = ?, duration_seconds = ?, agents_used = ?,
		 outcome = ?, cost_usd = ? WHERE id = ?`,
		call.EndedAt, call.DurationSeconds, call.AgentsUsed, call.Outcome,
		call.CostUSD, call.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing call: %w", err)
	}
	return nil
}

// GetByID returns a call by ID, or nil if not found.
func (r *callRepo) GetByID(ctx context.Context, id string) (*models.Call, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, caller_id, started_at, ended_at, duration_seconds,
		 agents_used, outcome, cost_usd FROM calls WHERE id = ?`, id,
	)

	var c models.Call
	err := row.Scan(&c.ID, &c.CallerID, &c.StartedAt, &c.EndedAt,
		&c.DurationSeconds, &c.AgentsUsed, &c.Outcome, &c.CostUSD)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call: %w", err)
	}
	return &c, nil
}

// List returns calls newest first, along with the total count.
func (r *callRepo) List(ctx context.Context, limit, offset int) ([]models.Call, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calls").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, caller_id, started_at, ended_at, duration_seconds,
		 agents_used, outcome, cost_usd FROM calls
		 ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		var c models.Call
		if err := rows.Scan(&c.ID, &c.CallerID, &c.StartedAt, &c.EndedAt,
			&c.DurationSeconds, &c.AgentsUsed, &c.Outcome, &c.CostUSD); err != nil {
			return nil, 0, fmt.Errorf("scanning call row: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating call rows: %w", err)
	}

	return calls, total, nil
}

// CountByOutcome returns call counts grouped by outcome.
func (r *callRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM calls GROUP BY outcome",
	)
	if err != nil {
		return nil, fmt.Errorf("counting calls by outcome: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}
	return counts, nil
}

// TotalCost sums the model cost over all recorded calls.
func (r *callRepo) TotalCost(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(cost_usd), 0) FROM calls",
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing call cost: %w", err)
	}
	return total, nil
}
