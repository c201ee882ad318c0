package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dshills/supportgraph-go/domain"
)

// SQLiteRepository is a SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the order database at path.
// ":memory:" gives an in-memory database for tests.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
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

	schema := `CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		expected_delivery TIMESTAMP NOT NULL,
		amount REAL NOT NULL,
		refundable INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Seed inserts orders, replacing any rows with the same IDs.
func (r *SQLiteRepository) Seed(ctx context.Context, orders []domain.Order) error {
	query := `INSERT INTO orders (id, status, expected_delivery, amount, refundable, description)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			expected_delivery = excluded.expected_delivery,
			amount = excluded.amount,
			refundable = excluded.refundable,
			description = excluded.description`
	for _, ord := range orders {
		refundable := 0
		if ord.Refundable {
			refundable = 1
		}
		_, err := r.db.ExecContext(ctx, query,
			ord.ID, string(ord.Status), ord.ExpectedDelivery, ord.Amount, refundable, ord.Description)
		if err != nil {
			return fmt.Errorf("failed to seed order %s: %w", ord.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT id, status, expected_delivery, amount, refundable, description
		FROM orders WHERE id = ?`

	var ord domain.Order
	var status string
	var refundable int
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ord.ID, &status, &ord.ExpectedDelivery, &ord.Amount, &refundable, &ord.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("failed to load order: %w", err)
	}
	ord.Status = domain.OrderStatus(status)
	ord.Refundable = refundable != 0
	return ord, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return domain.Order{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
