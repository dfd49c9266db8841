package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"eventtriage/internal/filter"
	"eventtriage/pkg/models"
)

// Count returns the number of events matching pred.
func (s *Store) Count(ctx context.Context, pred filter.Predicate) (int64, error) {
	var n int64
	err := s.run(ctx, "count", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM network_events `+pred.Where(), pred.Args()...).Scan(&n)
	})
	return n, err
}

// CountByLevel returns one row per priority level, zero-filled, in
// critical→low order.
func (s *Store) CountByLevel(ctx context.Context, pred filter.Predicate) ([]models.LevelCount, error) {
	counts := make(map[models.Level]int64, len(models.Levels))
	err := s.run(ctx, "count_by_level", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT priority_level, COUNT(*) FROM network_events `+pred.Where()+` GROUP BY priority_level`,
			pred.Args()...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var level string
			var n int64
			if err := rows.Scan(&level, &n); err != nil {
				return err
			}
			counts[models.Level(level)] += n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.LevelCount, 0, len(models.Levels))
	for _, l := range models.Levels {
		out = append(out, models.LevelCount{Level: l, Count: counts[l]})
	}
	return out, nil
}

// Summary returns the dashboard headline counters for pred.
func (s *Store) Summary(ctx context.Context, pred filter.Predicate) (models.Summary, error) {
	var sum models.Summary
	levels, err := s.CountByLevel(ctx, pred)
	if err != nil {
		return sum, err
	}
	for _, lc := range levels {
		switch lc.Level {
		case models.LevelCritical:
			sum.PriorityCritical = lc.Count
		case models.LevelHigh:
			sum.PriorityHigh = lc.Count
		case models.LevelMedium:
			sum.PriorityMedium = lc.Count
		case models.LevelLow:
			sum.PriorityLow = lc.Count
		}
	}

	err = s.run(ctx, "summary", func(ctx context.Context) error {
		var days int64
		var avg sql.NullFloat64
		if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT substr(timestamp, 1, 10)), AVG(priority_score)
FROM network_events `+pred.Where(), pred.Args()...).Scan(&sum.TotalEvents, &days, &avg); err != nil {
			return fmt.Errorf("totals: %w", err)
		}
		if days > 0 {
			sum.DailyAverage = round2(float64(sum.TotalEvents) / float64(days))
		}
		if avg.Valid {
			sum.AverageScore = round2(avg.Float64)
		}

		malicious := pred.And("attack_type != ?", models.BenignLabel)
		err := s.db.QueryRowContext(ctx, `
SELECT attack_type FROM network_events `+malicious.Where()+`
GROUP BY attack_type ORDER BY COUNT(*) DESC, attack_type ASC LIMIT 1`, malicious.Args()...).Scan(&sum.MostCommonAttack)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("most common attack: %w", err)
		}

		open := pred.And("priority_level = ?", string(models.LevelCritical)).And("is_processed = ?", 0)
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM network_events `+open.Where(), open.Args()...).
			Scan(&sum.UnprocessedCritical); err != nil {
			return fmt.Errorf("unprocessed critical: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Summary{}, err
	}
	return sum, nil
}

// CountByAttackType returns the attack distribution, most frequent first.
// Percentages are of the predicate's total, rounded to 2 decimals.
func (s *Store) CountByAttackType(ctx context.Context, pred filter.Predicate) ([]models.AttackTypeCount, error) {
	return s.countByAttackType(ctx, "count_by_attack_type", pred, 0)
}

func (s *Store) countByAttackType(ctx context.Context, op string, pred filter.Predicate, limit int) ([]models.AttackTypeCount, error) {
	out := []models.AttackTypeCount{}
	err := s.run(ctx, op, func(ctx context.Context) error {
		q := `SELECT attack_type, COUNT(*) FROM network_events ` + pred.Where() +
			` GROUP BY attack_type ORDER BY COUNT(*) DESC, attack_type ASC`
		args := pred.Args()
		if limit > 0 {
			q += ` LIMIT ?`
			args = append(args, limit)
		}
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row models.AttackTypeCount
			if err := rows.Scan(&row.AttackType, &row.Count); err != nil {
				return err
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if limit > 0 {
			return nil
		}

		var total int64
		for _, row := range out {
			total += row.Count
		}
		if total == 0 {
			return nil
		}
		for i := range out {
			out[i].Percentage = round2(float64(out[i].Count) * 100 / float64(total))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountByHour buckets events by hour of day (UTC). Hours without events are
// omitted.
func (s *Store) CountByHour(ctx context.Context, pred filter.Predicate) ([]models.HourlyCount, error) {
	out := []models.HourlyCount{}
	err := s.run(ctx, "count_by_hour", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
SELECT CAST(strftime('%H', timestamp) AS INTEGER) AS hour,
  COUNT(*),
  SUM(CASE WHEN priority_level = 'critical' THEN 1 ELSE 0 END),
  SUM(CASE WHEN priority_level = 'high' THEN 1 ELSE 0 END),
  SUM(CASE WHEN priority_level = 'medium' THEN 1 ELSE 0 END)
FROM network_events `+pred.Where()+`
GROUP BY hour ORDER BY hour`, pred.Args()...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row models.HourlyCount
			if err := rows.Scan(&row.Hour, &row.TotalEvents, &row.CriticalEvents, &row.HighEvents, &row.MediumEvents); err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopPorts returns the n most targeted destination ports of malicious
// traffic with their criticality entry when one exists.
func (s *Store) TopPorts(ctx context.Context, pred filter.Predicate, n int) ([]models.PortCount, error) {
	if n <= 0 {
		return []models.PortCount{}, nil
	}
	malicious := pred.And("ne.attack_type != ?", models.BenignLabel)
	out := []models.PortCount{}
	err := s.run(ctx, "top_ports", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
SELECT ne.destination_port, COUNT(*) AS cnt, cp.service_name, cp.criticality_score
FROM network_events ne
LEFT JOIN critical_ports cp ON ne.destination_port = cp.port_number
`+malicious.Where()+`
GROUP BY ne.destination_port
ORDER BY cnt DESC, ne.destination_port ASC
LIMIT ?`, append(malicious.Args(), n)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				row     models.PortCount
				service sql.NullString
				score   sql.NullFloat64
			)
			if err := rows.Scan(&row.DestinationPort, &row.Count, &service, &score); err != nil {
				return err
			}
			if service.Valid {
				row.ServiceName = service.String
			}
			if score.Valid {
				v := score.Float64
				row.CriticalityScore = &v
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopSources ranks attacking addresses by malicious event count.
func (s *Store) TopSources(ctx context.Context, pred filter.Predicate, n int) ([]models.HostStat, error) {
	return s.topHosts(ctx, "top_sources", "source_ip", pred, n)
}

// TopDestinations ranks targeted addresses by malicious event count.
func (s *Store) TopDestinations(ctx context.Context, pred filter.Predicate, n int) ([]models.HostStat, error) {
	return s.topHosts(ctx, "top_destinations", "destination_ip", pred, n)
}

// column is one of the two fixed address columns, never caller input.
func (s *Store) topHosts(ctx context.Context, op, column string, pred filter.Predicate, n int) ([]models.HostStat, error) {
	if n <= 0 {
		return []models.HostStat{}, nil
	}
	malicious := pred.And("attack_type != ?", models.BenignLabel)
	out := []models.HostStat{}
	err := s.run(ctx, op, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
SELECT `+column+`, COUNT(*) AS cnt, AVG(priority_score), MAX(priority_score),
  COUNT(DISTINCT attack_type), MAX(timestamp)
FROM network_events `+malicious.Where()+`
GROUP BY `+column+`
ORDER BY cnt DESC, MAX(priority_score) DESC, `+column+` ASC
LIMIT ?`, append(malicious.Args(), n)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				row      models.HostStat
				avg      float64
				lastSeen string
			)
			if err := rows.Scan(&row.IP, &row.Count, &avg, &row.MaxScore, &row.AttackTypes, &lastSeen); err != nil {
				return err
			}
			row.AvgScore = round2(avg)
			if row.LastSeen, err = parseTime(lastSeen); err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Trend returns daily totals since the given instant, oldest first.
func (s *Store) Trend(ctx context.Context, since time.Time) ([]models.TrendPoint, error) {
	pred := filter.Predicate{}.And("timestamp >= ?", filter.FormatTime(since))
	out := []models.TrendPoint{}
	err := s.run(ctx, "trend", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
SELECT substr(timestamp, 1, 10) AS day,
  COUNT(*),
  SUM(CASE WHEN priority_level = 'critical' THEN 1 ELSE 0 END),
  SUM(CASE WHEN priority_level = 'high' THEN 1 ELSE 0 END),
  SUM(CASE WHEN priority_level = 'medium' THEN 1 ELSE 0 END),
  SUM(CASE WHEN priority_level = 'low' THEN 1 ELSE 0 END),
  SUM(CASE WHEN attack_type != ? THEN 1 ELSE 0 END),
  SUM(CASE WHEN attack_type = ? THEN 1 ELSE 0 END)
FROM network_events `+pred.Where()+`
GROUP BY day ORDER BY day`, append([]any{models.BenignLabel, models.BenignLabel}, pred.Args()...)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p models.TrendPoint
			if err := rows.Scan(&p.Date, &p.TotalEvents, &p.CriticalEvents, &p.HighEvents, &p.MediumEvents,
				&p.LowEvents, &p.MaliciousEvents, &p.BenignEvents); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RiskHeatmap buckets malicious events by weekday (0 = Sunday) and hour.
func (s *Store) RiskHeatmap(ctx context.Context, pred filter.Predicate) ([]models.HeatmapCell, error) {
	malicious := pred.And("attack_type != ?", models.BenignLabel)
	out := []models.HeatmapCell{}
	err := s.run(ctx, "risk_heatmap", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
SELECT CAST(strftime('%w', timestamp) AS INTEGER) AS dow,
  CAST(strftime('%H', timestamp) AS INTEGER) AS hour,
  COUNT(*), AVG(priority_score)
FROM network_events `+malicious.Where()+`
GROUP BY dow, hour ORDER BY dow, hour`, malicious.Args()...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c models.HeatmapCell
			var avg float64
			if err := rows.Scan(&c.DayOfWeek, &c.Hour, &c.EventCount, &avg); err != nil {
				return err
			}
			c.AvgPriority = round2(avg)
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const kpiTopLabels = 5

// KPI summarizes the [from, to] window. High priority means critical or high.
func (s *Store) KPI(ctx context.Context, from, to time.Time) (models.KPI, error) {
	kpi := models.KPI{From: from.UTC(), To: to.UTC()}
	pred := filter.Predicate{}.
		And("timestamp >= ?", filter.FormatTime(from)).
		And("timestamp <= ?", filter.FormatTime(to))

	err := s.run(ctx, "kpi", func(ctx context.Context) error {
		var avg sql.NullFloat64
		if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
  COALESCE(SUM(CASE WHEN priority_level IN (?, ?) THEN 1 ELSE 0 END), 0),
  AVG(priority_score)
FROM network_events `+pred.Where(),
			append([]any{string(models.LevelCritical), string(models.LevelHigh)}, pred.Args()...)...).
			Scan(&kpi.TotalEvents, &kpi.HighPriorityCount, &avg); err != nil {
			return err
		}
		if avg.Valid {
			kpi.AverageScore = round2(avg.Float64)
		}
		return nil
	})
	if err != nil {
		return models.KPI{}, err
	}

	labels, err := s.countByAttackType(ctx, "kpi_labels", pred.And("attack_type != ?", ""), kpiTopLabels)
	if err != nil {
		return models.KPI{}, err
	}
	for i := range labels {
		if kpi.TotalEvents > 0 {
			labels[i].Percentage = round2(float64(labels[i].Count) * 100 / float64(kpi.TotalEvents))
		}
	}
	kpi.TopLabels = labels
	return kpi, nil
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
