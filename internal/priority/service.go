// Package priority is the triage surface: it ranks events, serves cached
// dashboard aggregates and applies analyst mutations.
package priority

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"eventtriage/internal/filter"
	"eventtriage/internal/logger"
	"eventtriage/internal/metrics"
	"eventtriage/internal/scoring"
	"eventtriage/internal/statcache"
	"eventtriage/internal/store"
	"eventtriage/pkg/models"
)

// ErrInvalidPriority is returned when a manual override is out of range.
var ErrInvalidPriority = errors.New("invalid priority")

// TTLs are the freshness windows of each cached aggregation.
type TTLs struct {
	Summary      time.Duration
	Distribution time.Duration
	Hourly       time.Duration
	TopN         time.Duration
	Trend        time.Duration
	Heatmap      time.Duration
	KPI          time.Duration
}

// Config controls the service.
type Config struct {
	TTL TTLs
	// MaxRange caps listing filter spans. Zero disables the check.
	MaxRange    time.Duration
	KPIMaxRange time.Duration
	// ScoreWorkers bounds parallel scoring of a result page.
	ScoreWorkers     int
	RescoreBatchSize int
	// TablesPath is the optional YAML override of the scoring tables.
	TablesPath string
}

// EventPage is one ranked page of the triage queue.
type EventPage struct {
	Events     []models.RankedEvent `json:"events"`
	Pagination models.Pagination    `json:"pagination"`
}

// Service wires the calculator, filter compiler, store and cache together.
type Service struct {
	cfg   Config
	store *store.Store
	cache *statcache.Cache
	calc  atomic.Pointer[scoring.Calculator]
	now   func() time.Time
}

// NewService creates a service. A nil cache disables caching.
func NewService(st *store.Store, cache *statcache.Cache, calc *scoring.Calculator, cfg Config) (*Service, error) {
	if st == nil {
		return nil, errors.New("event store is nil")
	}
	if calc == nil {
		return nil, errors.New("score calculator is nil")
	}
	if cache == nil {
		cache = statcache.New(nil)
	}
	cfg.TTL = withDefaultTTLs(cfg.TTL)
	if cfg.KPIMaxRange <= 0 {
		cfg.KPIMaxRange = 30 * 24 * time.Hour
	}
	if cfg.ScoreWorkers <= 0 {
		cfg.ScoreWorkers = 4
	}
	if cfg.RescoreBatchSize <= 0 {
		cfg.RescoreBatchSize = 500
	}

	s := &Service{cfg: cfg, store: st, cache: cache, now: time.Now}
	s.calc.Store(calc)
	return s, nil
}

func withDefaultTTLs(t TTLs) TTLs {
	if t.Summary <= 0 {
		t.Summary = 60 * time.Second
	}
	if t.Distribution <= 0 {
		t.Distribution = 300 * time.Second
	}
	if t.Hourly <= 0 {
		t.Hourly = 300 * time.Second
	}
	if t.TopN <= 0 {
		t.TopN = 300 * time.Second
	}
	if t.Trend <= 0 {
		t.Trend = 300 * time.Second
	}
	if t.Heatmap <= 0 {
		t.Heatmap = 600 * time.Second
	}
	if t.KPI <= 0 {
		t.KPI = 300 * time.Second
	}
	return t
}

// Calculator returns the calculator currently in use.
func (s *Service) Calculator() *scoring.Calculator {
	return s.calc.Load()
}

// ScoreEvent scores ev with the configured scheme.
func (s *Service) ScoreEvent(ev models.Event) models.ScoreResult {
	res := s.calc.Load().Score(&ev)
	metrics.EventsScored.WithLabelValues(res.Scheme, string(res.Level)).Inc()
	return res
}

// ListEvents returns one ranked page of events matching req. Every row
// carries its computed analysis.
func (s *Service) ListEvents(ctx context.Context, req filter.Request, page, pageSize int, orderBy, orderDir string) (EventPage, error) {
	pred, err := filter.Compile(req, filter.Options{MaxSpan: s.cfg.MaxRange})
	if err != nil {
		return EventPage{}, err
	}
	rows, pg, err := s.store.List(ctx, pred, page, pageSize, orderBy, orderDir)
	if err != nil {
		return EventPage{}, fmt.Errorf("list events: %w", err)
	}
	ranked, err := s.rank(ctx, rows)
	if err != nil {
		return EventPage{}, err
	}
	return EventPage{Events: ranked, Pagination: pg}, nil
}

// ExportEvents returns up to the store's export ceiling of ranked events.
func (s *Service) ExportEvents(ctx context.Context, req filter.Request, limit int, orderBy, orderDir string) (EventPage, error) {
	pred, err := filter.Compile(req, filter.Options{MaxSpan: s.cfg.MaxRange})
	if err != nil {
		return EventPage{}, err
	}
	rows, pg, err := s.store.Export(ctx, pred, limit, orderBy, orderDir)
	if err != nil {
		return EventPage{}, fmt.Errorf("export events: %w", err)
	}
	ranked, err := s.rank(ctx, rows)
	if err != nil {
		return EventPage{}, err
	}
	return EventPage{Events: ranked, Pagination: pg}, nil
}

// GetEvent returns one ranked event.
func (s *Service) GetEvent(ctx context.Context, id int64) (models.RankedEvent, error) {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return models.RankedEvent{}, err
	}
	ranked, err := s.rank(ctx, []models.Event{ev})
	if err != nil {
		return models.RankedEvent{}, err
	}
	return ranked[0], nil
}

// rank attaches derived fields and a calculator analysis to each row.
// Row order is preserved.
func (s *Service) rank(ctx context.Context, rows []models.Event) ([]models.RankedEvent, error) {
	out := make([]models.RankedEvent, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	keys := make([]store.FrequencyKey, len(rows))
	for i, ev := range rows {
		keys[i] = store.FrequencyKey{SourceIP: ev.SourceIP, AttackType: ev.AttackType}
	}
	freq, err := s.store.Frequencies(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("count repeats: %w", err)
	}

	calc := s.calc.Load()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScoreWorkers)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev := rows[i]
			if ev.Frequency <= 0 {
				ev.Frequency = freq[keys[i]]
			}
			res := calc.Score(&ev)
			r := models.NewRankedEvent(ev)
			r.Analysis = &res
			r.Recommendation = calc.Recommendation(ev.PriorityScore, ev.AttackType)
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkProcessed flags an event as handled and invalidates all cached
// aggregates.
func (s *Service) MarkProcessed(ctx context.Context, id int64, notes string) (bool, error) {
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		return s.store.MarkProcessed(ctx, id, notes, s.now())
	})
	return s.recordUpdate("mark_processed", id, err)
}

// UpdatePriority overrides the stored score and level of one event.
func (s *Service) UpdatePriority(ctx context.Context, id int64, score float64, level string) (bool, error) {
	if math.IsNaN(score) || score < 0 || score > 100 {
		metrics.TriageUpdates.WithLabelValues("update_priority", "invalid").Inc()
		return false, fmt.Errorf("%w: score %.2f outside [0, 100]", ErrInvalidPriority, score)
	}
	lvl, ok := models.ParseLevel(level)
	if !ok {
		metrics.TriageUpdates.WithLabelValues("update_priority", "invalid").Inc()
		return false, fmt.Errorf("%w: unknown level %q", ErrInvalidPriority, level)
	}
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		return s.store.UpdatePriority(ctx, id, score, lvl)
	})
	return s.recordUpdate("update_priority", id, err)
}

func (s *Service) recordUpdate(action string, id int64, err error) (bool, error) {
	switch {
	case err == nil:
		metrics.TriageUpdates.WithLabelValues(action, "ok").Inc()
		logger.Infof("Triage update: action=%s id=%d", action, id)
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		metrics.TriageUpdates.WithLabelValues(action, "not_found").Inc()
		return false, err
	default:
		metrics.TriageUpdates.WithLabelValues(action, "error").Inc()
		logger.Errorf("Triage update failed: action=%s id=%d err=%v", action, id, err)
		return false, fmt.Errorf("%s %d: %w", action, id, err)
	}
}
