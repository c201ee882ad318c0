package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for production deployments where suspended walks must survive
// process restarts and may be resumed by a different instance. The store
// keeps one row per thread and uses an upsert per save, so a thread's
// storage stays constant regardless of how many nodes its walks execute.
//
// Never hardcode credentials; pass a DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN") // user:pass@tcp(host:3306)/supportgraph?parseTime=true
//	st, err := store.NewMySQLStore[State](dsn)
//
// The DSN must include parseTime=true so created_at scans into time.Time.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore creates a MySQL-backed checkpoint store and verifies the
// connection. Required tables are created if they do not exist.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore[S]) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS walk_checkpoints (
			thread_id    VARCHAR(255) PRIMARY KEY,
			state        JSON NOT NULL,
			pending_node VARCHAR(255) NOT NULL,
			created_at   TIMESTAMP(6) NOT NULL
		)`)
	return err
}

// Save upserts the checkpoint row for cp.ThreadID.
func (s *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
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
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			pending_node = VALUES(pending_node),
			created_at = VALUES(created_at)`,
		cp.ThreadID, string(stateJSON), cp.PendingNode, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint for the thread id, or ErrNotFound.
func (s *MySQLStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
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
func (s *MySQLStore[S]) Delete(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM walk_checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore[S]) Close() error {
	return s.db.Close()
}
