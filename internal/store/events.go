package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventtriage/internal/filter"
	"eventtriage/internal/logger"
	"eventtriage/pkg/models"
)

const eventColumns = `id, timestamp, source_ip, destination_ip, source_port, destination_port, protocol, attack_type,
  total_fwd_packets, total_bwd_packets, total_length_fwd_packets, total_length_bwd_packets,
  priority_score, priority_level, is_processed, processed_at, notes`

// DefaultOrderColumn and DefaultOrderDir are used when the caller's sort is
// not recognized.
const (
	DefaultOrderColumn = "priority_score"
	DefaultOrderDir    = "DESC"
)

var sortableColumns = map[string]struct{}{
	"id":               {},
	"timestamp":        {},
	"source_ip":        {},
	"destination_ip":   {},
	"destination_port": {},
	"protocol":         {},
	"attack_type":      {},
	"priority_score":   {},
	"priority_level":   {},
	"is_processed":     {},
}

// OrderClause validates the caller's sort against the allow-list.
// Unrecognized values fall back to priority_score DESC.
func OrderClause(orderBy, orderDir string) string {
	col := strings.ToLower(strings.TrimSpace(orderBy))
	dir := strings.ToUpper(strings.TrimSpace(orderDir))
	if _, ok := sortableColumns[col]; !ok {
		if col != "" {
			logger.Debugf("Unknown sort column %q, using %s", orderBy, DefaultOrderColumn)
		}
		col = DefaultOrderColumn
		if dir != "ASC" {
			dir = DefaultOrderDir
		}
	}
	if dir != "ASC" && dir != "DESC" {
		dir = DefaultOrderDir
	}

	parts := []string{col + " " + dir}
	if col != "timestamp" && col != "id" {
		parts = append(parts, "timestamp DESC")
	}
	if col != "id" {
		parts = append(parts, "id DESC")
	}
	return strings.Join(parts, ", ")
}

// Insert stores a new event and returns its id.
func (s *Store) Insert(ctx context.Context, ev *models.Event) (int64, error) {
	if ev == nil {
		return 0, errors.New("event is nil")
	}
	if ev.Timestamp.IsZero() {
		return 0, errors.New("event timestamp is zero")
	}
	level := ev.PriorityLevel
	if level == "" {
		level = models.LevelLow
	}
	if !level.Valid() {
		return 0, fmt.Errorf("invalid priority level %q", ev.PriorityLevel)
	}

	var id int64
	err := s.run(ctx, "insert", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
INSERT INTO network_events (timestamp, source_ip, destination_ip, source_port, destination_port, protocol, attack_type,
  total_fwd_packets, total_bwd_packets, total_length_fwd_packets, total_length_bwd_packets,
  priority_score, priority_level, is_processed, processed_at, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			filter.FormatTime(ev.Timestamp), ev.SourceIP, ev.DestinationIP, ev.SourcePort, ev.DestinationPort,
			ev.Protocol, ev.AttackType,
			ev.TotalFwdPackets, ev.TotalBwdPackets, ev.TotalLengthFwdPackets, ev.TotalLengthBwdPackets,
			ev.PriorityScore, string(level), boolInt(ev.IsProcessed), nullTime(ev.ProcessedAt), ev.Notes,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns one event by id.
func (s *Store) Get(ctx context.Context, id int64) (models.Event, error) {
	var ev models.Event
	err := s.run(ctx, "get", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM network_events WHERE id = ? LIMIT 1`, id)
		got, err := scanEvent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event %d: %w", id, ErrNotFound)
		}
		ev = got
		return err
	})
	return ev, err
}

// List returns one page of events matching pred. pageSize is clamped to the
// configured maximum; a page past the end yields no rows and no error.
func (s *Store) List(ctx context.Context, pred filter.Predicate, page, pageSize int, orderBy, orderDir string) ([]models.Event, models.Pagination, error) {
	return s.list(ctx, "list", pred, page, pageSize, s.maxPageSize, orderBy, orderDir)
}

// Export returns up to the export ceiling of matching events in one page.
func (s *Store) Export(ctx context.Context, pred filter.Predicate, limit int, orderBy, orderDir string) ([]models.Event, models.Pagination, error) {
	if limit <= 0 || limit > s.exportMaxRows {
		limit = s.exportMaxRows
	}
	return s.list(ctx, "export", pred, 1, limit, s.exportMaxRows, orderBy, orderDir)
}

func (s *Store) list(ctx context.Context, op string, pred filter.Predicate, page, pageSize, ceiling int, orderBy, orderDir string) ([]models.Event, models.Pagination, error) {
	if page < 1 {
		return nil, models.Pagination{}, fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidPagination, page)
	}
	if pageSize < 1 {
		return nil, models.Pagination{}, fmt.Errorf("%w: page size must be >= 1, got %d", ErrInvalidPagination, pageSize)
	}
	if pageSize > ceiling {
		pageSize = ceiling
	}
	offset := int64(page-1) * int64(pageSize)
	where := pred.Where()

	var total int64
	var events []models.Event
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM network_events `+where, pred.Args()...).Scan(&total); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		if offset >= total {
			return nil
		}

		q := `SELECT ` + eventColumns + ` FROM network_events ` + where +
			` ORDER BY ` + OrderClause(orderBy, orderDir) + ` LIMIT ? OFFSET ?`
		args := append(pred.Args(), pageSize, offset)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("select events: %w", err)
		}
		defer rows.Close()

		events = make([]models.Event, 0, pageSize)
		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, models.NewPagination(total, page, pageSize), nil
}

// MarkProcessed flags an event as handled. processed_at is only set on the
// first transition; notes are always replaced.
func (s *Store) MarkProcessed(ctx context.Context, id int64, notes string, at time.Time) error {
	return s.run(ctx, "mark_processed", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
UPDATE network_events
SET processed_at = CASE WHEN is_processed = 1 AND processed_at IS NOT NULL THEN processed_at ELSE ? END,
    is_processed = 1,
    notes = ?
WHERE id = ?`, filter.FormatTime(at), notes, id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// UpdatePriority overwrites the stored score and level of one event.
func (s *Store) UpdatePriority(ctx context.Context, id int64, score float64, level models.Level) error {
	return s.run(ctx, "update_priority", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE network_events SET priority_score = ?, priority_level = ? WHERE id = ?`,
			score, string(level), id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// ScoreUpdate is one row of a batch rescore.
type ScoreUpdate struct {
	ID    int64
	Score float64
	Level models.Level
}

// UpdateScores writes a batch of scores in one transaction and returns the
// number of rows changed.
func (s *Store) UpdateScores(ctx context.Context, updates []ScoreUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	var changed int
	err := s.run(ctx, "update_scores", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `UPDATE network_events SET priority_score = ?, priority_level = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range updates {
			res, err := stmt.ExecContext(ctx, u.Score, string(u.Level), u.ID)
			if err != nil {
				return fmt.Errorf("update event %d: %w", u.ID, err)
			}
			n, _ := res.RowsAffected()
			changed += int(n)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// FrequencyKey identifies repeats of the same attack from the same source.
type FrequencyKey struct {
	SourceIP   string
	AttackType string
}

const frequencyChunk = 200

// Frequencies counts stored events for each (source_ip, attack_type) pair.
func (s *Store) Frequencies(ctx context.Context, keys []FrequencyKey) (map[FrequencyKey]int, error) {
	out := make(map[FrequencyKey]int, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	uniq := make([]FrequencyKey, 0, len(keys))
	seen := make(map[FrequencyKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}

	err := s.run(ctx, "frequencies", func(ctx context.Context) error {
		for start := 0; start < len(uniq); start += frequencyChunk {
			end := min(start+frequencyChunk, len(uniq))
			chunk := uniq[start:end]

			conds := make([]string, len(chunk))
			args := make([]any, 0, len(chunk)*2)
			for i, k := range chunk {
				conds[i] = "(source_ip = ? AND attack_type = ?)"
				args = append(args, k.SourceIP, k.AttackType)
			}
			rows, err := s.db.QueryContext(ctx, `
SELECT source_ip, attack_type, COUNT(*) FROM network_events
WHERE `+strings.Join(conds, " OR ")+`
GROUP BY source_ip, attack_type`, args...)
			if err != nil {
				return err
			}
			for rows.Next() {
				var k FrequencyKey
				var n int
				if err := rows.Scan(&k.SourceIP, &k.AttackType, &n); err != nil {
					rows.Close()
					return err
				}
				out[k] = n
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (models.Event, error) {
	var (
		ev          models.Event
		ts          string
		level       string
		processed   int
		processedAt sql.NullString
	)
	err := r.Scan(
		&ev.ID, &ts, &ev.SourceIP, &ev.DestinationIP, &ev.SourcePort, &ev.DestinationPort, &ev.Protocol, &ev.AttackType,
		&ev.TotalFwdPackets, &ev.TotalBwdPackets, &ev.TotalLengthFwdPackets, &ev.TotalLengthBwdPackets,
		&ev.PriorityScore, &level, &processed, &processedAt, &ev.Notes,
	)
	if err != nil {
		return models.Event{}, err
	}

	if ev.Timestamp, err = parseTime(ts); err != nil {
		return models.Event{}, err
	}
	ev.PriorityLevel = models.Level(level)
	ev.IsProcessed = processed != 0
	if processedAt.Valid && processedAt.String != "" {
		t, err := parseTime(processedAt.String)
		if err != nil {
			return models.Event{}, err
		}
		ev.ProcessedAt = &t
	}
	return ev, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return filter.FormatTime(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
