package sync

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rclouned/rclouned/internal/utils"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS sync_history (
    id TEXT PRIMARY KEY,
    started TEXT NOT NULL,       -- RFC3339
    finished TEXT NOT NULL,      -- RFC3339
    dry_run INTEGER NOT NULL,
    uploads INTEGER NOT NULL,
    downloads INTEGER NOT NULL,
    local_deletes INTEGER NOT NULL,
    remote_deletes INTEGER NOT NULL,
    conflicts INTEGER NOT NULL,
    anomalies INTEGER NOT NULL,
    failures INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_started ON sync_history(started);
`

// CycleRecord is one persisted row of the sync history.
type CycleRecord struct {
	ID            string
	Started       time.Time
	Finished      time.Time
	DryRun        bool
	Uploads       int
	Downloads     int
	LocalDeletes  int
	RemoteDeletes int
	Conflicts     int
	Anomalies     int
	Failures      int
}

// History keeps a durable record of completed cycles in SQLite, for
// operational visibility: repeated failures and recurring conflicts show
// up here even after the process restarts.
type History struct {
	db *sql.DB
}

// NewHistory creates or opens the history database.
func NewHistory(dbPath string) (*History, error) {
	if err := utils.EnsureParent(dbPath); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db at %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1) // SQLite best practice for WAL mode

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return &History{db: db}, nil
}

func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Record persists the outcome of one cycle.
func (h *History) Record(res *CycleResult) error {
	_, err := h.db.Exec(
		`INSERT INTO sync_history
		 (id, started, finished, dry_run, uploads, downloads, local_deletes, remote_deletes, conflicts, anomalies, failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.Started.Format(time.RFC3339),
		res.Finished.Format(time.RFC3339),
		res.DryRun,
		res.Uploads,
		res.Downloads,
		res.LocalDeletes,
		res.RemoteDeletes,
		res.Conflicts,
		res.Anomalies,
		len(res.Failed),
	)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", res.ID, err)
	}
	return nil
}

// Recent returns the most recent cycles, newest first.
func (h *History) Recent(limit int) ([]CycleRecord, error) {
	rows, err := h.db.Query(
		`SELECT id, started, finished, dry_run, uploads, downloads, local_deletes, remote_deletes, conflicts, anomalies, failures
		 FROM sync_history ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var started, finished string
		if err := rows.Scan(
			&rec.ID, &started, &finished, &rec.DryRun,
			&rec.Uploads, &rec.Downloads, &rec.LocalDeletes, &rec.RemoteDeletes,
			&rec.Conflicts, &rec.Anomalies, &rec.Failures,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if rec.Started, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("parse started for %s: %w", rec.ID, err)
		}
		if rec.Finished, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("parse finished for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}
