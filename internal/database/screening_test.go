package database

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBlacklistRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewScreeningRepository(db)
	ctx := context.Background()

	blocked, err := repo.IsBlacklisted(ctx, "+4930111")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if blocked {
		t.Error("fresh caller should not be blacklisted")
	}

	if err := repo.AddToBlacklist(ctx, "+4930111", "Spam"); err != nil {
		t.Fatalf("AddToBlacklist: %v", err)
	}
	blocked, _ = repo.IsBlacklisted(ctx, "+4930111")
	if !blocked {
		t.Error("caller should be blacklisted")
	}

	// Re-adding updates instead of failing.
	if err := repo.AddToBlacklist(ctx, "+4930111", "Spam again"); err != nil {
		t.Fatalf("AddToBlacklist twice: %v", err)
	}
	entries, err := repo.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("ListBlacklist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].Reason != "Spam again" {
		t.Errorf("reason = %q, want updated reason", entries[0].Reason)
	}

	removed, err := repo.RemoveFromBlacklist(ctx, "+4930111")
	if err != nil {
		t.Fatalf("RemoveFromBlacklist: %v", err)
	}
	if !removed {
		t.Error("remove should report true for existing entry")
	}
	removed, _ = repo.RemoveFromBlacklist(ctx, "+4930111")
	if removed {
		t.Error("remove should report false for missing entry")
	}
}

func TestWhitelistRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewScreeningRepository(db)
	ctx := context.Background()

	if err := repo.AddToWhitelist(ctx, "+4915199", "Familie"); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}
	listed, err := repo.IsWhitelisted(ctx, "+4915199")
	if err != nil {
		t.Fatalf("IsWhitelisted: %v", err)
	}
	if !listed {
		t.Error("caller should be whitelisted")
	}

	entries, err := repo.ListWhitelist(ctx)
	if err != nil {
		t.Fatalf("ListWhitelist: %v", err)
	}
	if len(entries) != 1 || entries[0].Note != "Familie" {
		t.Errorf("entries = %+v", entries)
	}

	removed, err := repo.RemoveFromWhitelist(ctx, "+4915199")
	if err != nil {
		t.Fatalf("RemoveFromWhitelist: %v", err)
	}
	if !removed {
		t.Error("remove should report true")
	}
	listed, _ = repo.IsWhitelisted(ctx, "+4915199")
	if listed {
		t.Error("caller should no longer be whitelisted")
	}
}

func TestAutoBlacklistThreshold(t *testing.T) {
	db := openTestDB(t)
	repo := NewScreeningRepository(db)
	ctx := context.Background()
	caller := "+4917612345"

	for i := 0; i < 2; i++ {
		if err := repo.RecordFailedCall(ctx, caller); err != nil {
			t.Fatalf("RecordFailedCall: %v", err)
		}
		triggered, err := repo.CheckAndAutoBlacklist(ctx, caller)
		if err != nil {
			t.Fatalf("CheckAndAutoBlacklist: %v", err)
		}
		if triggered {
			t.Fatalf("blacklisted after %d failures", i+1)
		}
	}

	if err := repo.RecordFailedCall(ctx, caller); err != nil {
		t.Fatalf("RecordFailedCall: %v", err)
	}
	triggered, err := repo.CheckAndAutoBlacklist(ctx, caller)
	if err != nil {
		t.Fatalf("CheckAndAutoBlacklist: %v", err)
	}
	if !triggered {
		t.Fatal("third failure should trigger the auto-blacklist")
	}

	entries, err := repo.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("ListBlacklist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0].Reason, "fehlgeschlagene Anrufe") {
		t.Errorf("reason = %q", entries[0].Reason)
	}

	// Already blacklisted: a fourth failure does not re-trigger.
	if err := repo.RecordFailedCall(ctx, caller); err != nil {
		t.Fatalf("RecordFailedCall: %v", err)
	}
	triggered, err = repo.CheckAndAutoBlacklist(ctx, caller)
	if err != nil {
		t.Fatalf("CheckAndAutoBlacklist: %v", err)
	}
	if triggered {
		t.Error("should not re-trigger for already blacklisted caller")
	}
}

func TestRemoveFromBlacklistClearsFailures(t *testing.T) {
	db := openTestDB(t)
	repo := NewScreeningRepository(db)
	ctx := context.Background()
	caller := "+43123456"

	for i := 0; i < 3; i++ {
		if err := repo.RecordFailedCall(ctx, caller); err != nil {
			t.Fatalf("RecordFailedCall: %v", err)
		}
	}
	if _, err := repo.CheckAndAutoBlacklist(ctx, caller); err != nil {
		t.Fatalf("CheckAndAutoBlacklist: %v", err)
	}

	if _, err := repo.RemoveFromBlacklist(ctx, caller); err != nil {
		t.Fatalf("RemoveFromBlacklist: %v", err)
	}

	count, err := repo.CountRecentFailures(ctx, caller, 12*time.Hour)
	if err != nil {
		t.Fatalf("CountRecentFailures: %v", err)
	}
	if count != 0 {
		t.Errorf("failures after unblock = %d, want 0", count)
	}

	// A single fresh failure must not immediately re-blacklist.
	if err := repo.RecordFailedCall(ctx, caller); err != nil {
		t.Fatalf("RecordFailedCall: %v", err)
	}
	triggered, err := repo.CheckAndAutoBlacklist(ctx, caller)
	if err != nil {
		t.Fatalf("CheckAndAutoBlacklist: %v", err)
	}
	if triggered {
		t.Error("one failure after unblock should not blacklist")
	}
}

func TestCountRecentFailuresWindow(t *testing.T) {
	db := openTestDB(t)
	repo := NewScreeningRepository(db)
	ctx := context.Background()
	caller := "+49301234"

	// One old entry outside the window, inserted directly.
	old := time.Now().UTC().Add(-13 * time.Hour)
	if _, err := db.ExecContext(ctx,
		"INSERT INTO failed_unlock_calls (caller_id, failed_at) VALUES (?, ?)",
		caller, old,
	); err != nil {
		t.Fatalf("inserting old failure: %v", err)
	}
	if err := repo.RecordFailedCall(ctx, caller); err != nil {
		t.Fatalf("RecordFailedCall: %v", err)
	}

	count, err := repo.CountRecentFailures(ctx, caller, 12*time.Hour)
	if err != nil {
		t.Fatalf("CountRecentFailures: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (old entry outside window)", count)
	}
}
