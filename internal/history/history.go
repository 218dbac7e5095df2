// Package history provides SQLite-based persistence for run snapshots.
// The global database lives at ~/.local/share/swarm/swarm.db.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hiveworks/swarm/pkg/models"
)

// DB wraps an SQLite connection storing run history. It satisfies the
// registry's Sink interface: every upserted snapshot is persisted, latest
// state per run plus a full event trail.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// GlobalDBPath returns the path to the global swarm database.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "swarm", "swarm.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenGlobal opens the global swarm database.
func OpenGlobal() (*DB, error) {
	return Open(GlobalDBPath())
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// migrate applies all pending schema migrations.
func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Runs},
		{2, migrationV2Snapshots},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	objective TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	cost REAL NOT NULL DEFAULT 0.0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	partial INTEGER NOT NULL DEFAULT 0,
	output TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

const migrationV2Snapshots = `
CREATE TABLE IF NOT EXISTS run_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	status TEXT NOT NULL,
	cost REAL NOT NULL DEFAULT 0.0,
	snapshot TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_snapshots_run_id ON run_snapshots(run_id);
`

// Store persists one snapshot: the runs row is upserted to the latest
// state, and the full snapshot is appended to the trail as JSON.
func (db *DB) Store(snap models.RunSnapshot) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, objective, status, cost, duration_ms, started_at, updated_at, partial, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			cost = excluded.cost,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at,
			partial = excluded.partial,
			output = excluded.output
	`, snap.RunID, snap.Objective.Text, string(snap.Status), snap.Cost,
		snap.Duration.Milliseconds(), snap.StartedAt, snap.UpdatedAt,
		boolToInt(snap.Partial), snap.Output)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", snap.RunID, err)
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for run %s: %w", snap.RunID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO run_snapshots (run_id, status, cost, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, snap.RunID, string(snap.Status), snap.Cost, string(blob), snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("append snapshot for run %s: %w", snap.RunID, err)
	}
	return nil
}

// RunRecord is the latest persisted state of one run.
type RunRecord struct {
	ID        string
	Objective string
	Status    models.RunStatus
	Cost      float64
	Duration  time.Duration
	StartedAt time.Time
	UpdatedAt time.Time
	Partial   bool
	Output    string
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, objective, status, cost, duration_ms, started_at, updated_at, partial, COALESCE(output, '')
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRun returns the latest persisted state of one run.
func (db *DB) GetRun(runID string) (RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, objective, status, cost, duration_ms, started_at, updated_at, partial, COALESCE(output, '')
		FROM runs WHERE id = ?
	`, runID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run %s not found", runID)
	}
	return rec, err
}

// GetTrail returns the snapshot trail for a run, oldest first.
func (db *DB) GetTrail(runID string) ([]models.RunSnapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT snapshot FROM run_snapshots WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get trail for run %s: %w", runID, err)
	}
	defer rows.Close()

	var trail []models.RunSnapshot
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var snap models.RunSnapshot
		if err := json.Unmarshal([]byte(blob), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot for run %s: %w", runID, err)
		}
		trail = append(trail, snap)
	}
	return trail, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var status string
	var durationMS int64
	var partial int
	err := row.Scan(&rec.ID, &rec.Objective, &status, &rec.Cost, &durationMS,
		&rec.StartedAt, &rec.UpdatedAt, &partial, &rec.Output)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Status = models.RunStatus(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.Partial = partial == 1
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
