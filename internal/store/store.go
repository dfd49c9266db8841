// Package store executes filtered, paginated reads, aggregations and triage
// updates against the SQLite event table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"eventtriage/internal/logger"
	"eventtriage/internal/metrics"
	"eventtriage/pkg/models"
)

var (
	// ErrNotFound is returned when the requested event id does not exist.
	ErrNotFound = errors.New("event not found")
	// ErrInvalidPagination is returned for non-positive page or page size.
	ErrInvalidPagination = errors.New("invalid pagination parameter")
	// ErrAggregationTimeout is returned when a query exceeds the configured bound.
	ErrAggregationTimeout = errors.New("aggregation timeout")
)

// Config configures the event store.
type Config struct {
	Path          string
	QueryTimeout  time.Duration
	MaxPageSize   int
	ExportMaxRows int
}

// Store is the SQLite-backed aggregate store. It is safe for concurrent use.
type Store struct {
	db            *sql.DB
	queryTimeout  time.Duration
	maxPageSize   int
	exportMaxRows int
}

// Open opens (creating if needed) the database at cfg.Path and migrates it.
func Open(cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.ExportMaxRows <= 0 {
		cfg.ExportMaxRows = 50000
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{
		db:            db,
		queryTimeout:  cfg.QueryTimeout,
		maxPageSize:   cfg.MaxPageSize,
		exportMaxRows: cfg.ExportMaxRows,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

// DB exposes the handle so the SQL cache backend can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// MaxPageSize is the page size ceiling for List.
func (s *Store) MaxPageSize() int {
	return s.maxPageSize
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS network_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  source_ip TEXT NOT NULL DEFAULT '',
  destination_ip TEXT NOT NULL DEFAULT '',
  source_port INTEGER NOT NULL DEFAULT 0,
  destination_port INTEGER NOT NULL DEFAULT 0,
  protocol INTEGER NOT NULL DEFAULT 0,
  attack_type TEXT NOT NULL DEFAULT '',
  total_fwd_packets INTEGER NOT NULL DEFAULT 0,
  total_bwd_packets INTEGER NOT NULL DEFAULT 0,
  total_length_fwd_packets INTEGER NOT NULL DEFAULT 0,
  total_length_bwd_packets INTEGER NOT NULL DEFAULT 0,
  priority_score REAL NOT NULL DEFAULT 0,
  priority_level TEXT NOT NULL DEFAULT 'low',
  is_processed INTEGER NOT NULL DEFAULT 0,
  processed_at TEXT,
  notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON network_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_attack_type ON network_events(attack_type);
CREATE INDEX IF NOT EXISTS idx_events_priority_level ON network_events(priority_level);
CREATE INDEX IF NOT EXISTS idx_events_priority_score ON network_events(priority_score);
CREATE INDEX IF NOT EXISTS idx_events_source_ip ON network_events(source_ip);
CREATE INDEX IF NOT EXISTS idx_events_destination_port ON network_events(destination_port);

CREATE TABLE IF NOT EXISTS dashboard_stats_cache (
  stat_key TEXT PRIMARY KEY,
  stat_value BLOB NOT NULL,
  computed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attack_type_weights (
  attack_type TEXT PRIMARY KEY,
  weight REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS critical_ports (
  port_number INTEGER PRIMARY KEY,
  service_name TEXT NOT NULL DEFAULT '',
  criticality_score REAL NOT NULL
);
`)
	return err
}

// run executes fn under the query timeout and records its latency.
// A deadline overrun surfaces as ErrAggregationTimeout.
func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	err := fn(qctx)
	metrics.StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded)):
		metrics.StoreQueryErrors.WithLabelValues(op, "timeout").Inc()
		logger.Errorf("Store query timed out: op=%s timeout=%s", op, s.queryTimeout)
		return fmt.Errorf("%s: %w", op, ErrAggregationTimeout)
	default:
		metrics.StoreQueryErrors.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
}

func parseTime(v string) (time.Time, error) {
	t, err := time.ParseInLocation(models.TimeLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}
