package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hiveworks/swarm/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "swarm.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func snap(runID string, status models.RunStatus, cost float64) models.RunSnapshot {
	return models.RunSnapshot{
		RunID:     runID,
		Objective: models.Objective{Text: "test objective"},
		Status:    status,
		Cost:      cost,
		Duration:  3 * time.Second,
		StartedAt: time.Now().Add(-time.Minute),
		UpdatedAt: time.Now(),
	}
}

func TestStoreAndGetRun(t *testing.T) {
	db := openTestDB(t)

	if err := db.Store(snap("run-1", models.RunStatusRunning, 0.10)); err != nil {
		t.Fatalf("store: %v", err)
	}

	rec, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != models.RunStatusRunning {
		t.Errorf("expected running, got %s", rec.Status)
	}
	if rec.Objective != "test objective" {
		t.Errorf("unexpected objective %q", rec.Objective)
	}
	if rec.Duration != 3*time.Second {
		t.Errorf("expected 3s, got %v", rec.Duration)
	}
}

func TestStoreUpsertsLatestState(t *testing.T) {
	db := openTestDB(t)

	if err := db.Store(snap("run-1", models.RunStatusRunning, 0.10)); err != nil {
		t.Fatal(err)
	}
	final := snap("run-1", models.RunStatusCompleted, 0.50)
	final.Output = "the result"
	if err := db.Store(final); err != nil {
		t.Fatal(err)
	}

	rec, err := db.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.RunStatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
	if rec.Cost != 0.50 {
		t.Errorf("expected cost 0.50, got %v", rec.Cost)
	}
	if rec.Output != "the result" {
		t.Errorf("expected output, got %q", rec.Output)
	}

	trail, err := db.GetTrail("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 trail entries, got %d", len(trail))
	}
	if trail[0].Status != models.RunStatusRunning || trail[1].Status != models.RunStatusCompleted {
		t.Errorf("trail out of order: %s, %s", trail[0].Status, trail[1].Status)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	older := snap("run-old", models.RunStatusCompleted, 0.10)
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := snap("run-new", models.RunStatusCompleted, 0.20)

	if err := db.Store(older); err != nil {
		t.Fatal(err)
	}
	if err := db.Store(newer); err != nil {
		t.Fatal(err)
	}

	records, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(records))
	}
	if records[0].ID != "run-new" {
		t.Errorf("expected newest first, got %s", records[0].ID)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetRun("ghost"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Re-opening runs migrations again; already-applied versions are skipped.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db2.Close()
}
