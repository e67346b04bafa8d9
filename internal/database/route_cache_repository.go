package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// undefinedTable is the PostgreSQL SQLSTATE of a missing relation
const undefinedTable = "42P01"

// routeCacheSchema works on both PostgreSQL and SQLite
const routeCacheSchema = `
	CREATE TABLE IF NOT EXISTS route_cache (
		path_id     VARCHAR(32) PRIMARY KEY,
		routes      TEXT NOT NULL,
		computed_at TIMESTAMP NOT NULL
	)`

// RouteCacheRepository stores precomputed route lists keyed by "<source>-<destination>"
type RouteCacheRepository struct {
	db *sqlx.DB
}

// NewRouteCacheRepository creates a new route cache repository
func NewRouteCacheRepository(db *sqlx.DB) *RouteCacheRepository {
	return &RouteCacheRepository{db: db}
}

// EnsureTable creates the route_cache table if it does not exist
func (r *RouteCacheRepository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, routeCacheSchema); err != nil {
		return fmt.Errorf("failed to create route_cache table: %w", err)
	}
	return nil
}

// Get returns the serialized routes stored under pathID
func (r *RouteCacheRepository) Get(ctx context.Context, pathID string) ([]byte, bool, error) {
	query := r.db.Rebind(`SELECT routes FROM route_cache WHERE path_id = ?`)

	var routes string
	err := r.db.GetContext(ctx, &routes, query, pathID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUndefinedTable(err) {
			// Nothing precomputed yet
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read route cache %s: %w", pathID, err)
	}
	return []byte(routes), true, nil
}

// Put inserts or replaces the serialized routes stored under pathID
func (r *RouteCacheRepository) Put(ctx context.Context, pathID string, routes []byte) error {
	query := r.db.Rebind(`
		INSERT INTO route_cache (path_id, routes, computed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (path_id) DO UPDATE
		SET routes = excluded.routes, computed_at = excluded.computed_at
	`)

	if _, err := r.db.ExecContext(ctx, query, pathID, string(routes), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write route cache %s: %w", pathID, err)
	}
	return nil
}

// Count returns the number of cached pairs
func (r *RouteCacheRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM route_cache`); err != nil {
		return 0, fmt.Errorf("failed to count route cache: %w", err)
	}
	return count, nil
}

// Clear deletes every cached pair and returns how many were removed
func (r *RouteCacheRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM route_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear route cache: %w", err)
	}
	return result.RowsAffected()
}

// isUndefinedTable reports whether err is PostgreSQL's "relation does not exist"
// as returned by either the pgx or the lib/pq driver
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == undefinedTable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == undefinedTable
	}
	return false
}
