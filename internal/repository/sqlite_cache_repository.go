package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

// SQLiteCacheRepository stores JSON values in the local kv_cache table.
type SQLiteCacheRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteCacheRepository constructs the repository.
func NewSQLiteCacheRepository(db *sqlx.DB) *SQLiteCacheRepository {
	return &SQLiteCacheRepository{db: db, now: time.Now}
}

type cacheRow struct {
	Value     string `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

// Get retrieves and unmarshals the value stored under key.
func (r *SQLiteCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	var row cacheRow
	err := r.db.GetContext(ctx, &row, `SELECT value, updated_at FROM kv_cache WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("sqlite get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(row.Value), dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set overwrites the value stored under key.
func (r *SQLiteCacheRepository) Set(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	query := `INSERT INTO kv_cache (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key, string(payload), r.now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *SQLiteCacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}
