// Package database records per-image pipeline outcomes in a SQLite
// manifest, so a finished run can be audited after the fact.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"dataset-coach/internal/logging"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Record is one processed image within a stage.
type Record struct {
	SourcePath  string
	ContentHash string
	Stage       string
	OutputPath  string
	Status      string // "ok" or "failed"
	Error       string
	CreatedAt   time.Time
}

// StageCounts aggregates outcomes for one stage.
type StageCounts struct {
	Stage  string
	OK     int
	Failed int
}

// Manifest is the run manifest database.
type Manifest struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the manifest at dbPath. The parent directory must
// exist and be writable.
func Open(ctx context.Context, dbPath string) (*Manifest, error) {
	// WAL mode with a busy timeout keeps concurrent stage workers from
	// tripping over "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close manifest after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to manifest database: %w", err)
	}

	m := &Manifest{db: db}
	if err := m.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close manifest after schema failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize manifest schema: %w", err)
	}

	logging.Info("Manifest database opened at %s", dbPath)
	return m, nil
}

func (m *Manifest) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_path TEXT NOT NULL,
		content_hash TEXT,
		stage TEXT NOT NULL,
		output_path TEXT,
		status TEXT NOT NULL,
		error TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_records_stage ON records(stage);
	CREATE INDEX IF NOT EXISTS idx_records_hash ON records(content_hash);
	`
	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := m.db.ExecContext(initCtx, schema)
	return err
}

// RecordResult inserts one record. Failures are logged and swallowed: the
// manifest is an audit trail, not a pipeline dependency.
func (m *Manifest) RecordResult(ctx context.Context, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := m.db.ExecContext(opCtx,
		`INSERT INTO records (source_path, content_hash, stage, output_path, status, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SourcePath, rec.ContentHash, rec.Stage, rec.OutputPath, rec.Status, rec.Error)
	if err != nil {
		logging.Error("Failed to record manifest entry for %s: %v", rec.SourcePath, err)
	}
}

// StageSummary returns per-stage ok/failed counts across all runs.
func (m *Manifest) StageSummary(ctx context.Context) ([]StageCounts, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(opCtx,
		`SELECT stage,
		        SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		 FROM records GROUP BY stage ORDER BY stage`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage summary: %w", err)
	}
	defer rows.Close()

	var out []StageCounts
	for rows.Next() {
		var c StageCounts
		if err := rows.Scan(&c.Stage, &c.OK, &c.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan stage summary: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordsForStage returns the records for one stage, newest first.
func (m *Manifest) RecordsForStage(ctx context.Context, stage string, limit int) ([]Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(opCtx,
		`SELECT source_path, content_hash, stage, output_path, status, error, created_at
		 FROM records WHERE stage = ? ORDER BY id DESC LIMIT ?`, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var hash, output, errMsg sql.NullString
		if err := rows.Scan(&rec.SourcePath, &hash, &rec.Stage, &output, &rec.Status, &errMsg, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.ContentHash = hash.String
		rec.OutputPath = output.String
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (m *Manifest) Close() error {
	return m.db.Close()
}
