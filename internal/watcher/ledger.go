package watcher

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Entry is one forwarding attempt. A file that fails and is retried later
// gets a new entry per attempt.
type Entry struct {
	ID          int64
	Filename    string
	Path        string
	Status      Status
	DocumentID  string
	ChunksCount int
	Error       string
	ProcessedAt time.Time
}

// Ledger records every file the watcher has tried to forward.
type Ledger struct {
	db *sql.DB
}

func NewLedger(dataSourceName string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	l := &Ledger{db: db}
	if err = l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS processed_files (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        filename TEXT NOT NULL,
        path TEXT NOT NULL,
        status TEXT NOT NULL CHECK (status IN ('processed', 'failed')),
        document_id TEXT NOT NULL DEFAULT '',
        chunks_count INTEGER NOT NULL DEFAULT 0,
        error TEXT NOT NULL DEFAULT '',
        processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_processed_files_filename ON processed_files (filename);
    `
	_, err := l.db.Exec(schema)
	return err
}

func (l *Ledger) Record(ctx context.Context, e Entry) error {
	stmt, err := l.db.PrepareContext(ctx,
		"INSERT INTO processed_files (filename, path, status, document_id, chunks_count, error, processed_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC()
	}
	_, err = stmt.ExecContext(ctx, e.Filename, e.Path, string(e.Status), e.DocumentID, e.ChunksCount, e.Error, e.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to execute ledger insert: %w", err)
	}
	return nil
}

// Last returns the most recent attempt for filename, or nil if there is none.
func (l *Ledger) Last(ctx context.Context, filename string) (*Entry, error) {
	var e Entry
	var status string
	err := l.db.QueryRowContext(ctx,
		"SELECT id, filename, path, status, document_id, chunks_count, error, processed_at FROM processed_files WHERE filename = ? ORDER BY id DESC LIMIT 1",
		filename,
	).Scan(&e.ID, &e.Filename, &e.Path, &status, &e.DocumentID, &e.ChunksCount, &e.Error, &e.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	e.Status = Status(status)
	return &e, nil
}

// Counts returns how many attempts ended in each status.
func (l *Ledger) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM processed_files GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	defer rows.Close()

	counts := map[Status]int{StatusProcessed: 0, StatusFailed: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan ledger count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}
