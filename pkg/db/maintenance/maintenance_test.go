package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tripreel/pkg/db"
)

func TestMaintenance(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()

	insert := func(key string, age time.Duration) {
		ts := time.Now().Add(-age).UTC().Format("2006-01-02 15:04:05")
		if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", key, "val", ts); err != nil {
			t.Fatal(err)
		}
	}
	insert("old-key", 40*24*time.Hour)
	insert("new-key", 24*time.Hour)

	if err := Run(ctx, d, 30*24*time.Hour); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT count(*) FROM cache").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after prune, got %d", count)
	}

	// A second run within the interval leaves the cache alone
	insert("another-old", 40*24*time.Hour)
	if err := Run(ctx, d, 30*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := d.QueryRow("SELECT count(*) FROM cache").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected prune to be skipped, got %d entries", count)
	}
}

func TestDue(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "due.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()
	now := time.Now()

	if !due(ctx, d, now) {
		t.Error("expected due without state")
	}
	_ = d.SetState(ctx, lastPruneStateKey, now.Add(-2*time.Hour).UTC().Format(time.RFC3339))
	if due(ctx, d, now) {
		t.Error("expected not due after 2h")
	}
	_ = d.SetState(ctx, lastPruneStateKey, now.Add(-25*time.Hour).UTC().Format(time.RFC3339))
	if !due(ctx, d, now) {
		t.Error("expected due after 25h")
	}
	_ = d.SetState(ctx, lastPruneStateKey, "garbage")
	if !due(ctx, d, now) {
		t.Error("expected due with unparsable state")
	}
}
