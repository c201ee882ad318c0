package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps the latest checkpoint per thread in a single-file database.
// Designed for:
//   - Single-process deployments that must survive restarts
//   - Development with zero setup
//   - Prototyping before migrating to MySQL
//
// The store uses WAL mode so concurrent readers do not block the writer,
// and an upsert per save so each thread occupies exactly one row.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a SQLite-backed checkpoint store.
//
// The path parameter is the database file location; ":memory:" gives an
// in-memory database for tests. The store creates its table on first use.
//
// Example:
//
//	st, err := store.NewSQLiteStore[State]("./supportgraph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports a single writer; keep one connection so the
	// in-memory database is shared across calls as well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS walk_checkpoints (
			thread_id    TEXT PRIMARY KEY,
			state        TEXT NOT NULL,
			pending_node TEXT NOT NULL,
			created_at   TIMESTAMP NOT NULL
		)`)
	return err
}

// Save upserts the checkpoint row for cp.ThreadID.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if cp.ThreadID == "" {
		return errors.New("thread id cannot be empty")
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO walk_checkpoints (thread_id, state, pending_node, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			state = excluded.state,
			pending_node = excluded.pending_node,
			created_at = excluded.created_at`,
		cp.ThreadID, string(stateJSON), cp.PendingNode, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint for the thread id, or ErrNotFound.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var (
		stateJSON   string
		pendingNode string
		createdAt   time.Time
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT state, pending_node, created_at
		FROM walk_checkpoints
		WHERE thread_id = ?`, threadID).Scan(&stateJSON, &pendingNode, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return Checkpoint[S]{
		ThreadID:    threadID,
		State:       state,
		PendingNode: pendingNode,
		CreatedAt:   createdAt,
	}, nil
}

// Delete removes the checkpoint row for the thread id.
func (s *SQLiteStore[S]) Delete(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM walk_checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}
