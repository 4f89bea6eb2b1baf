// Package jobstore persists per-job packaging history in SQLite.
package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when the schema changes. A mismatched database
// must be deleted; history is disposable.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Record is one row of job history.
type Record struct {
	JobID          string
	Source         string
	Name           string
	Status         string
	DescriptorPath string
	InfoHash       string
	PieceCount     int
	PieceLength    int64
	TotalBytes     int64
	Elapsed        time.Duration
	Error          string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// Store manages job history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// RecordStart inserts a fresh history row for a job entering the batch.
func (s *Store) RecordStart(ctx context.Context, jobID, source, status string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.execWithRetry(ctx,
		`INSERT INTO jobs (job_id, source, status, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		jobID, source, status, now, now)
}

// UpdateStatus moves a job to a new status.
func (s *Store) UpdateStatus(ctx context.Context, jobID, status string) error {
	return s.execWithRetry(ctx,
		"UPDATE jobs SET status = ?, updated_at = ? WHERE job_id = ?",
		status, time.Now().UTC().Format(time.RFC3339Nano), jobID)
}

// RecordOutcome writes the terminal fields for a finished job.
func (s *Store) RecordOutcome(ctx context.Context, rec Record) error {
	return s.execWithRetry(ctx,
		`UPDATE jobs SET
			name = ?, status = ?, descriptor_path = ?, info_hash = ?,
			piece_count = ?, piece_length = ?, total_bytes = ?,
			elapsed_ms = ?, error = ?, updated_at = ?
		 WHERE job_id = ?`,
		rec.Name, rec.Status, rec.DescriptorPath, rec.InfoHash,
		rec.PieceCount, rec.PieceLength, rec.TotalBytes,
		rec.Elapsed.Milliseconds(), rec.Error,
		time.Now().UTC().Format(time.RFC3339Nano), rec.JobID)
}

// Recent returns up to limit history rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx = ensureContext(ctx)

	var records []Record
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT job_id, source, name, status, descriptor_path, info_hash,
				piece_count, piece_length, total_bytes, elapsed_ms, error,
				started_at, updated_at
			 FROM jobs ORDER BY started_at DESC, job_id DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		records = records[:0]
		for rows.Next() {
			var (
				rec       Record
				elapsedMS int64
				started   string
				updated   string
			)
			if err := rows.Scan(&rec.JobID, &rec.Source, &rec.Name, &rec.Status,
				&rec.DescriptorPath, &rec.InfoHash, &rec.PieceCount, &rec.PieceLength,
				&rec.TotalBytes, &elapsedMS, &rec.Error, &started, &updated); err != nil {
				return err
			}
			rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
			rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
			rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	return records, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
