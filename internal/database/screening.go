package database

import (
	"context"
	"fmt"
	"time"

	"github.com/voicegate/voicegate/internal/database/models"
)

// Auto-blacklist: three failed unlock attempts within a rolling 12 hour
// window block the caller.
const (
	maxFailedCalls    = 3
	failedCallsWindow = 12 * time.Hour
)

type screeningRepo struct {
	db *DB
}

// NewScreeningRepository creates a new ScreeningRepository.
func NewScreeningRepository(db *DB) ScreeningRepository {
	return &screeningRepo{db: db}
}

func (r *screeningRepo) IsBlacklisted(ctx context.Context, callerID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blacklist WHERE caller_id = ?", callerID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking blacklist: %w", err)
	}
	return count > 0, nil
}

// AddToBlacklist blocks a caller. Re-adding updates the reason and timestamp.
func (r *screeningRepo) AddToBlacklist(ctx context.Context, callerID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO blacklist (caller_id, reason, blocked_at) VALUES (?, ?, ?)",
		callerID, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("adding to blacklist: %w", err)
	}
	return nil
}

// RemoveFromBlacklist unblocks a caller and clears their failed-unlock
// history so the auto-blacklist needs three fresh failures.
func (r *screeningRepo) RemoveFromBlacklist(ctx context.Context, callerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM blacklist WHERE caller_id = ?", callerID,
	)
	if err != nil {
		return false, fmt.Errorf("removing from blacklist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing from blacklist: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM failed_unlock_calls WHERE caller_id = ?", callerID,
	); err != nil {
		return false, fmt.Errorf("clearing failed calls: %w", err)
	}

	return n > 0, nil
}

func (r *screeningRepo) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT caller_id, reason, blocked_at FROM blacklist ORDER BY blocked_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("listing blacklist: %w", err)
	}
	defer rows.Close()

	var entries []models.BlacklistEntry
	for rows.Next() {
		var e models.BlacklistEntry
		if err := rows.Scan(&e.CallerID, &e.Reason, &e.BlockedAt); err != nil {
			return nil, fmt.Errorf("scanning blacklist row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blacklist rows: %w", err)
	}
	return entries, nil
}

func (r *screeningRepo) IsWhitelisted(ctx context.Context, callerID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM whitelist WHERE caller_id = ?", callerID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking whitelist: %w", err)
	}
	return count > 0, nil
}

func (r *screeningRepo) AddToWhitelist(ctx context.Context, callerID, note string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO whitelist (caller_id, note, added_at) VALUES (?, ?, ?)",
		callerID, note, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("adding to whitelist: %w", err)
	}
	return nil
}

func (r *screeningRepo) RemoveFromWhitelist(ctx context.Context, callerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM whitelist WHERE caller_id = ?", callerID,
	)
	if err != nil {
		return false, fmt.Errorf("removing from whitelist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing from whitelist: %w", err)
	}
	return n > 0, nil
}

func (r *screeningRepo) ListWhitelist(ctx context.Context) ([]models.WhitelistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT caller_id, note, added_at FROM whitelist ORDER BY added_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("listing whitelist: %w", err)
	}
	defer rows.Close()

	var entries []models.WhitelistEntry
	for rows.Next() {
		var e models.WhitelistEntry
		if err := rows.Scan(&e.CallerID, &e.Note, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scanning whitelist row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating whitelist rows: %w", err)
	}
	return entries, nil
}

func (r *screeningRepo) RecordFailedCall(ctx context.Context, callerID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO failed_unlock_calls (caller_id, failed_at) VALUES (?, ?)",
		callerID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording failed call: %w", err)
	}
	return nil
}

func (r *screeningRepo) CountRecentFailures(ctx context.Context, callerID string, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM failed_unlock_calls WHERE caller_id = ? AND failed_at > ?",
		callerID, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting failed calls: %w", err)
	}
	return count, nil
}

// CheckAndAutoBlacklist blacklists the caller once their recent failure count
// reaches the threshold. Returns true when this call blacklisted the caller.
func (r *screeningRepo) CheckAndAutoBlacklist(ctx context.Context, callerID string) (bool, error) {
	count, err := r.CountRecentFailures(ctx, callerID, failedCallsWindow)
	if err != nil {
		return false, err
	}
	if count < maxFailedCalls {
		return false, nil
	}

	blocked, err := r.IsBlacklisted(ctx, callerID)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	reason := fmt.Sprintf("Auto-Blacklist: %d fehlgeschlagene Anrufe in 12h", count)
	if err := r.AddToBlacklist(ctx, callerID, reason); err != nil {
		return false, err
	}
	return true, nil
}
