// Package postgres stores registry records in a single PostgreSQL table.
// The schema is managed by the embedded migrations in internal/db.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/store"
)

const recordColumns = `address, kind, parent, payload, updated_at`

// Store implements store.Store on top of sqlx.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

type txn struct {
	tx *sqlx.Tx
}

// Get locks the row for the remainder of the transaction.
func (t *txn) Get(ctx context.Context, addr address.Key) (*store.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM registry_records WHERE address = $1 FOR UPDATE`
	var rec store.Record
	if err := t.tx.GetContext(ctx, &rec, query, addr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

func (t *txn) Create(ctx context.Context, rec *store.Record) error {
	query := `
		INSERT INTO registry_records (address, kind, parent, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING
	`
	res, err := t.tx.ExecContext(ctx, query, rec.Address, string(rec.Kind), rec.Parent, string(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (t *txn) Put(ctx context.Context, rec *store.Record) error {
	query := `
		INSERT INTO registry_records (address, kind, parent, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = NOW()
	`
	if _, err := t.tx.ExecContext(ctx, query, rec.Address, string(rec.Kind), rec.Parent, string(rec.Payload)); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// Count sees rows committed before the statement plus this transaction's own writes.
func (t *txn) Count(ctx context.Context) (map[address.Kind]int64, error) {
	return countRecords(ctx, t.tx)
}

// Update runs fn inside a SQL transaction and commits only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, &txn{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, addr address.Key) (*store.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM registry_records WHERE address = $1`
	var rec store.Record
	if err := s.db.GetContext(ctx, &rec, query, addr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context, kind address.Kind, parent address.Key) ([]*store.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM registry_records WHERE kind = $1`
	args := []interface{}{string(kind)}
	if !parent.IsZero() {
		query += ` AND parent = $2`
		args = append(args, parent)
	}
	query += ` ORDER BY address`

	var recs []*store.Record
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, nil
}

func (s *Store) Count(ctx context.Context) (map[address.Kind]int64, error) {
	return countRecords(ctx, s.db)
}

func countRecords(ctx context.Context, q sqlx.QueryerContext) (map[address.Kind]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT kind, COUNT(*) FROM registry_records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[address.Kind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan record count: %w", err)
		}
		counts[address.Kind(kind)] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
