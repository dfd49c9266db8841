package statcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLBackend stores entries in the dashboard_stats_cache table, which the
// event store's migration creates.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend shares an already opened database handle.
func NewSQLBackend(db *sql.DB) (*SQLBackend, error) {
	if db == nil {
		return nil, errors.New("stat cache database is nil")
	}
	return &SQLBackend{db: db}, nil
}

func (b *SQLBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		value    []byte
		computed int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT stat_value, computed_at FROM dashboard_stats_cache WHERE stat_key = ?`, key).
		Scan(&value, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read stat cache entry: %w", err)
	}
	return Entry{Value: value, ComputedAt: time.UnixMilli(computed).UTC()}, true, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, e Entry) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO dashboard_stats_cache (stat_key, stat_value, computed_at) VALUES (?, ?, ?)
ON CONFLICT(stat_key) DO UPDATE SET stat_value = excluded.stat_value, computed_at = excluded.computed_at`,
		key, e.Value, e.ComputedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("write stat cache entry: %w", err)
	}
	return nil
}

func (b *SQLBackend) DeleteAll(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM dashboard_stats_cache`); err != nil {
		return fmt.Errorf("delete stat cache entries: %w", err)
	}
	return nil
}

// Close is a no-op; the event store owns the handle.
func (b *SQLBackend) Close() error { return nil }
