package priority

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eventtriage/internal/filter"
	"eventtriage/internal/statcache"
	"eventtriage/pkg/models"
)

const (
	defaultTopN = 10
	maxTopN     = 100
)

// Trend periods.
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// GetSummary returns the dashboard headline counters.
func (s *Service) GetSummary(ctx context.Context) (models.Summary, error) {
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("summary"), s.cfg.TTL.Summary,
		func(ctx context.Context) (models.Summary, error) {
			return s.store.Summary(ctx, filter.Predicate{})
		})
}

// GetAttackDistribution returns event counts per attack type.
func (s *Service) GetAttackDistribution(ctx context.Context) ([]models.AttackTypeCount, error) {
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("attack_distribution"), s.cfg.TTL.Distribution,
		func(ctx context.Context) ([]models.AttackTypeCount, error) {
			return s.store.CountByAttackType(ctx, filter.Predicate{})
		})
}

// GetHourlyDistribution buckets events by hour of day. date is an optional
// YYYY-MM-DD day (UTC); empty means all time.
func (s *Service) GetHourlyDistribution(ctx context.Context, date string) ([]models.HourlyCount, error) {
	date = strings.TrimSpace(date)
	pred := filter.Predicate{}
	if date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", filter.ErrInvalidFilterRange, date)
		}
		pred = pred.
			And("timestamp >= ?", filter.FormatTime(day)).
			And("timestamp < ?", filter.FormatTime(day.AddDate(0, 0, 1)))
	}
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("hourly_distribution", date), s.cfg.TTL.Hourly,
		func(ctx context.Context) ([]models.HourlyCount, error) {
			return s.store.CountByHour(ctx, pred)
		})
}

// GetTopPorts returns the n most targeted ports of malicious traffic.
func (s *Service) GetTopPorts(ctx context.Context, n int) ([]models.PortCount, error) {
	n = clampTopN(n)
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("top_ports", n), s.cfg.TTL.TopN,
		func(ctx context.Context) ([]models.PortCount, error) {
			return s.store.TopPorts(ctx, filter.Predicate{}, n)
		})
}

// GetTopAttackers returns the n most active malicious source addresses.
func (s *Service) GetTopAttackers(ctx context.Context, n int) ([]models.HostStat, error) {
	n = clampTopN(n)
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("top_attackers", n), s.cfg.TTL.TopN,
		func(ctx context.Context) ([]models.HostStat, error) {
			return s.store.TopSources(ctx, filter.Predicate{}, n)
		})
}

// GetTopTargets returns the n most targeted destination addresses.
func (s *Service) GetTopTargets(ctx context.Context, n int) ([]models.HostStat, error) {
	n = clampTopN(n)
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("top_targets", n), s.cfg.TTL.TopN,
		func(ctx context.Context) ([]models.HostStat, error) {
			return s.store.TopDestinations(ctx, filter.Predicate{}, n)
		})
}

// NormalizePeriod maps any period other than "week" to "month".
func NormalizePeriod(period string) string {
	if strings.EqualFold(strings.TrimSpace(period), PeriodWeek) {
		return PeriodWeek
	}
	return PeriodMonth
}

// GetTrend returns daily counts for the last 7 (week) or 30 days.
func (s *Service) GetTrend(ctx context.Context, period string) ([]models.TrendPoint, error) {
	period = NormalizePeriod(period)
	days := 30
	if period == PeriodWeek {
		days = 7
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -days)
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("trend", period), s.cfg.TTL.Trend,
		func(ctx context.Context) ([]models.TrendPoint, error) {
			return s.store.Trend(ctx, since)
		})
}

// GetRiskHeatmap returns weekday by hour volume of malicious events.
func (s *Service) GetRiskHeatmap(ctx context.Context) ([]models.HeatmapCell, error) {
	return statcache.GetOrCompute(ctx, s.cache, statcache.Key("risk_heatmap"), s.cfg.TTL.Heatmap,
		func(ctx context.Context) ([]models.HeatmapCell, error) {
			return s.store.RiskHeatmap(ctx, filter.Predicate{})
		})
}

// GetKPI summarizes [from, to]. A zero to means now; a zero from means 24h
// before to. Windows longer than the KPI maximum are rejected.
func (s *Service) GetKPI(ctx context.Context, from, to time.Time) (models.KPI, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	from, to = from.UTC().Truncate(time.Second), to.UTC().Truncate(time.Second)
	if _, err := filter.Compile(filter.Request{StartDate: &from, EndDate: &to}, filter.Options{MaxSpan: s.cfg.KPIMaxRange}); err != nil {
		return models.KPI{}, err
	}
	key := statcache.Key("kpi", from.Format(time.RFC3339), to.Format(time.RFC3339))
	return statcache.GetOrCompute(ctx, s.cache, key, s.cfg.TTL.KPI,
		func(ctx context.Context) (models.KPI, error) {
			return s.store.KPI(ctx, from, to)
		})
}

func clampTopN(n int) int {
	if n <= 0 {
		return defaultTopN
	}
	if n > maxTopN {
		return maxTopN
	}
	return n
}
