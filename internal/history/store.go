package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Invocation outcomes recorded in the ledger.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record is one finished node invocation.
type Record struct {
	ID           int64
	InvocationID uuid.UUID
	Node         string
	Status       string
	Detail       string
	ResultURL    string
	LocalPath    string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("open history: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
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

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Append inserts a finished invocation. A zero InvocationID is assigned
// one. Nil stores accept and drop the record so disabled ledgers need no
// call-site guards.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.InvocationID == uuid.Nil {
		rec.InvocationID = uuid.New()
	}
	if rec.Status != StatusSucceeded && rec.Status != StatusFailed {
		return fmt.Errorf("append history: unknown status %q", rec.Status)
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO invocations (
            invocation_id, node, status, detail, result_url, local_path,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.InvocationID.String(),
		rec.Node,
		rec.Status,
		nullableString(rec.Detail),
		nullableString(rec.ResultURL),
		nullableString(rec.LocalPath),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Recent returns the newest records first, at most limit of them.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, invocation_id, node, status, detail, result_url, local_path,
            started_at, finished_at
         FROM invocations ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return records, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		id          int64
		invocation  string
		node        string
		status      string
		detail      sql.NullString
		resultURL   sql.NullString
		localPath   sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(&id, &invocation, &node, &status, &detail, &resultURL, &localPath, &startedRaw, &finishedRaw); err != nil {
		return Record{}, err
	}

	invocationID, err := uuid.Parse(invocation)
	if err != nil {
		return Record{}, fmt.Errorf("parse invocation id %q: %w", invocation, err)
	}
	startedAt, err := time.Parse(time.RFC3339Nano, startedRaw)
	if err != nil {
		return Record{}, fmt.Errorf("parse started_at %q: %w", startedRaw, err)
	}
	finishedAt, err := time.Parse(time.RFC3339Nano, finishedRaw)
	if err != nil {
		return Record{}, fmt.Errorf("parse finished_at %q: %w", finishedRaw, err)
	}

	return Record{
		ID:           id,
		InvocationID: invocationID,
		Node:         node,
		Status:       status,
		Detail:       detail.String,
		ResultURL:    resultURL.String,
		LocalPath:    localPath.String,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
