package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avolkov/skycart/internal/kvstore"
)

// Store implements the key-value bridge over a single kv_snapshots table.
type Store struct{ db *DB }

var _ kvstore.Store = (*Store)(nil)

// NewStore constructs a Postgres-backed bridge.
func NewStore(db *DB) *Store { return &Store{db: db} }

// Get selects the value for key; no rows means a miss, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const q = `SELECT v FROM kv_snapshots WHERE k=$1`
	var v []byte
	err := s.db.Pool.QueryRow(ctx, q, key).Scan(&v)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Set upserts the value for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO kv_snapshots (k, v, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = now()`
	_, err := s.db.Pool.Exec(ctx, q, key, value)
	return err
}

// Delete removes key; deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM kv_snapshots WHERE k=$1`
	_, err := s.db.Pool.Exec(ctx, q, key)
	return err
}
