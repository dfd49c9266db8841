package priority

import (
	"context"
	"fmt"

	"eventtriage/internal/filter"
	"eventtriage/internal/logger"
	"eventtriage/internal/scoring"
	"eventtriage/internal/store"
	"eventtriage/pkg/models"
)

// Ingest scores and stores a batch of new events, then invalidates the
// cache once. Repeats within the batch count toward frequency. On error the
// ids of the events stored before the failure are returned.
func (s *Service) Ingest(ctx context.Context, events []models.Event) ([]int64, error) {
	stored, err := s.IngestEvents(ctx, events)
	ids := make([]int64, len(stored))
	for i, ev := range stored {
		ids[i] = ev.ID
	}
	return ids, err
}

// IngestEvents is Ingest returning the stored rows with their ids, scores
// and levels. On error it returns the prefix of events that were stored.
func (s *Service) IngestEvents(ctx context.Context, events []models.Event) ([]models.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	keys := make([]store.FrequencyKey, len(events))
	for i, ev := range events {
		keys[i] = store.FrequencyKey{SourceIP: ev.SourceIP, AttackType: ev.AttackType}
	}

	stored := make([]models.Event, 0, len(events))
	var insertErr error
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		seen, err := s.store.Frequencies(ctx, keys)
		if err != nil {
			return fmt.Errorf("count repeats: %w", err)
		}
		for i := range events {
			ev := events[i]
			if ev.Timestamp.IsZero() {
				ev.Timestamp = s.now()
			}
			seen[keys[i]]++
			if ev.Frequency <= 0 {
				ev.Frequency = seen[keys[i]]
			}
			res := s.ScoreEvent(ev)
			ev.PriorityScore = res.Score
			ev.PriorityLevel = res.Level

			id, err := s.store.Insert(ctx, &ev)
			if err != nil {
				insertErr = fmt.Errorf("insert event %d of %d: %w", i+1, len(events), err)
				if len(stored) == 0 {
					return insertErr
				}
				// Committed rows still need the invalidation under this lock.
				return nil
			}
			ev.ID = id
			stored = append(stored, ev)
		}
		return nil
	})
	if err != nil {
		return stored, err
	}
	if insertErr != nil {
		logger.Warnf("Partial ingest: stored=%d of %d err=%v", len(stored), len(events), insertErr)
		return stored, insertErr
	}
	logger.Infof("Ingested events: count=%d", len(stored))
	return stored, nil
}

// Rescore recomputes and persists the score of every event matching req.
// It walks the matches by id so rows whose level changes are not skipped.
func (s *Service) Rescore(ctx context.Context, req filter.Request) (int, error) {
	pred, err := filter.Compile(req, filter.Options{})
	if err != nil {
		return 0, err
	}

	var (
		lastID  int64
		changed int
		scanned int
	)
	for {
		rows, _, err := s.store.List(ctx, pred.And("id > ?", lastID), 1, s.cfg.RescoreBatchSize, "id", "ASC")
		if err != nil {
			return changed, fmt.Errorf("rescore page after id %d: %w", lastID, err)
		}
		if len(rows) == 0 {
			break
		}
		ranked, err := s.rank(ctx, rows)
		if err != nil {
			return changed, err
		}

		updates := make([]store.ScoreUpdate, 0, len(ranked))
		for _, r := range ranked {
			if r.Analysis == nil {
				continue
			}
			if r.Analysis.Score == r.PriorityScore && r.Analysis.Level == r.PriorityLevel {
				continue
			}
			updates = append(updates, store.ScoreUpdate{ID: r.ID, Score: r.Analysis.Score, Level: r.Analysis.Level})
		}
		if len(updates) > 0 {
			var n int
			err := s.cache.Mutate(ctx, func(ctx context.Context) error {
				var err error
				n, err = s.store.UpdateScores(ctx, updates)
				return err
			})
			if err != nil {
				return changed, fmt.Errorf("persist rescored batch: %w", err)
			}
			changed += n
		}
		scanned += len(rows)
		lastID = rows[len(rows)-1].ID
	}

	logger.Infof("Rescore finished: scanned=%d changed=%d scheme=%s", scanned, changed, s.calc.Load().Scheme())
	return changed, nil
}

// BuildTables layers the scoring tables: compiled defaults, then the YAML
// file at path when set, then the database lookup tables when non-empty.
func BuildTables(ctx context.Context, st *store.Store, path string) (scoring.Tables, error) {
	tables := scoring.DefaultTables()
	if path != "" {
		t, err := scoring.LoadTables(path)
		if err != nil {
			return scoring.Tables{}, err
		}
		tables = t
	}
	if st == nil {
		return tables, nil
	}
	db, err := st.LoadTables(ctx)
	if err != nil {
		return scoring.Tables{}, fmt.Errorf("load lookup tables: %w", err)
	}
	if len(db.AttackTypes) == 0 && len(db.Ports) == 0 {
		return tables, nil
	}
	return tables.Merge(db), nil
}

// ReloadTables swaps in a calculator over fileTables layered with the
// database lookup tables. Stored scores are left untouched.
func (s *Service) ReloadTables(ctx context.Context, fileTables scoring.Tables) error {
	tables := fileTables
	db, err := s.store.LoadTables(ctx)
	if err != nil {
		return fmt.Errorf("load lookup tables: %w", err)
	}
	if len(db.AttackTypes) > 0 || len(db.Ports) > 0 {
		tables = tables.Merge(db)
	}
	calc, err := s.calc.Load().WithTables(tables)
	if err != nil {
		return fmt.Errorf("rebuild calculator: %w", err)
	}
	s.calc.Store(calc)
	return nil
}
