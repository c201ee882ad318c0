package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/supportgraph-go/domain"
)

// SQLiteStore is a SQLite implementation of Store and ThreadIndex.
//
// Approvals and their thread bindings share one database file so a decision
// and the lookup that resumes the suspended walk read the same state. The
// PENDING guard on Transition lives in the UPDATE itself, which makes the
// once-only decision rule hold under concurrent decisions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the approval database at path.
// ":memory:" gives an in-memory database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS approval_threads (
			approval_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create approval schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) error {
	query := `INSERT INTO approvals (id, order_id, action, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.OrderID, string(rec.Action), string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	query := `SELECT id, order_id, action, status, created_at, updated_at
		FROM approvals WHERE id = ?`

	var rec Record
	var action, status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.OrderID, &action, &status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to load approval: %w", err)
	}
	rec.Action = domain.Action(action)
	rec.Status = domain.ApprovalStatus(status)
	return rec, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, to domain.ApprovalStatus) (Record, error) {
	query := `UPDATE approvals SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(to), time.Now().UTC(), id, string(domain.ApprovalPending))
	if err != nil {
		return Record{}, fmt.Errorf("failed to update approval: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Either the record is missing or it was already decided.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return Record{}, getErr
		}
		return Record{}, ErrAlreadyDecided
	}

	return s.Get(ctx, id)
}

func (s *SQLiteStore) Bind(ctx context.Context, approvalID, threadID string) error {
	query := `INSERT INTO approval_threads (approval_id, thread_id) VALUES (?, ?)
		ON CONFLICT(approval_id) DO UPDATE SET thread_id = excluded.thread_id`
	if _, err := s.db.ExecContext(ctx, query, approvalID, threadID); err != nil {
		return fmt.Errorf("failed to bind approval to thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, approvalID string) (string, error) {
	var threadID string
	err := s.db.QueryRowContext(ctx, `SELECT thread_id FROM approval_threads WHERE approval_id = ?`, approvalID).Scan(&threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up approval thread: %w", err)
	}
	return threadID, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
