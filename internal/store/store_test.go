package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventtriage/internal/filter"
	"eventtriage/internal/scoring"
	"eventtriage/pkg/models"
)

// Wednesday.
var base = time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "events.db"), MaxPageSize: 100})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insert(t *testing.T, s *Store, ev models.Event) int64 {
	t.Helper()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = base
	}
	id, err := s.Insert(context.Background(), &ev)
	require.NoError(t, err)
	return id
}

func compile(t *testing.T, req filter.Request) filter.Predicate {
	t.Helper()
	p, err := filter.Compile(req, filter.Options{})
	require.NoError(t, err)
	return p
}

func TestListPagination(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 57; i++ {
		insert(t, s, models.Event{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			SourceIP:      fmt.Sprintf("10.0.0.%d", i),
			AttackType:    "PortScan",
			PriorityScore: float64(i),
			PriorityLevel: models.LevelLow,
		})
	}
	ctx := context.Background()

	rows, page, err := s.List(ctx, filter.Predicate{}, 1, 25, "", "")
	require.NoError(t, err)
	assert.Len(t, rows, 25)
	assert.Equal(t, int64(57), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.HasPrev)
	assert.True(t, page.HasNext)

	rows, page, err = s.List(ctx, filter.Predicate{}, 3, 25, "", "")
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	assert.False(t, page.HasNext)

	rows, page, err = s.List(ctx, filter.Predicate{}, 4, 25, "", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
	assert.Equal(t, 3, page.TotalPages)
}

func TestListRejectsBadPagination(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.List(context.Background(), filter.Predicate{}, 0, 25, "", "")
	assert.ErrorIs(t, err, ErrInvalidPagination)
	_, _, err = s.List(context.Background(), filter.Predicate{}, 1, 0, "", "")
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestListClampsPageSize(t *testing.T) {
	s := openTestStore(t)
	insert(t, s, models.Event{AttackType: "Bot"})
	_, page, err := s.List(context.Background(), filter.Predicate{}, 1, 5000, "", "")
	require.NoError(t, err)
	assert.Equal(t, 100, page.PerPage)
}

func TestListAppliesCompiledFilter(t *testing.T) {
	s := openTestStore(t)
	insert(t, s, models.Event{AttackType: "DDoS", PriorityScore: 92, PriorityLevel: models.LevelCritical})
	insert(t, s, models.Event{AttackType: "DDoS", PriorityScore: 55, PriorityLevel: models.LevelMedium})
	insert(t, s, models.Event{AttackType: "PortScan", PriorityScore: 85, PriorityLevel: models.LevelCritical})
	insert(t, s, models.Event{AttackType: models.BenignLabel, PriorityScore: 0, PriorityLevel: models.LevelLow})

	pred := compile(t, filter.Request{AttackTypes: []string{"DDoS"}, PriorityLevels: []string{"critical"}})
	rows, page, err := s.List(context.Background(), pred, 1, 25, "", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "DDoS", rows[0].AttackType)
	assert.Equal(t, models.LevelCritical, rows[0].PriorityLevel)
}

func TestListHostileSearchIsLiteral(t *testing.T) {
	s := openTestStore(t)
	insert(t, s, models.Event{SourceIP: "10.0.0.1", AttackType: "Bot"})

	pred := compile(t, filter.Request{Search: "' OR '1'='1"})
	rows, _, err := s.List(context.Background(), pred, 1, 25, "", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOrderClauseFallsBack(t *testing.T) {
	assert.Equal(t, "priority_score DESC, timestamp DESC, id DESC", OrderClause("1; DROP TABLE network_events", "sideways"))
	assert.Equal(t, "priority_score ASC, timestamp DESC, id DESC", OrderClause("", "asc"))
	assert.Equal(t, "timestamp ASC, id DESC", OrderClause("timestamp", "ASC"))
	assert.Equal(t, "id DESC", OrderClause("id", "nope"))
	assert.Equal(t, "source_ip DESC, timestamp DESC, id DESC", OrderClause("SOURCE_IP", ""))
}

func TestListOrdering(t *testing.T) {
	s := openTestStore(t)
	low := insert(t, s, models.Event{AttackType: "Bot", PriorityScore: 10, Timestamp: base})
	high := insert(t, s, models.Event{AttackType: "Bot", PriorityScore: 90, Timestamp: base})
	tieOld := insert(t, s, models.Event{AttackType: "Bot", PriorityScore: 50, Timestamp: base})
	tieNew := insert(t, s, models.Event{AttackType: "Bot", PriorityScore: 50, Timestamp: base.Add(time.Hour)})

	rows, _, err := s.List(context.Background(), filter.Predicate{}, 1, 10, "not_a_column", "")
	require.NoError(t, err)
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []int64{high, tieNew, tieOld, low}, ids)
}

func TestGetAndNotFound(t *testing.T) {
	s := openTestStore(t)
	id := insert(t, s, models.Event{
		SourceIP: "10.0.0.5", DestinationIP: "192.168.1.10", DestinationPort: 22, Protocol: 6,
		AttackType: "SSH-Patator", TotalFwdPackets: 3, TotalBwdPackets: 4,
		PriorityScore: 61.5, PriorityLevel: models.LevelHigh,
	})

	ev, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "SSH-Patator", ev.AttackType)
	assert.Equal(t, int64(7), ev.TotalPackets())
	assert.True(t, ev.Timestamp.Equal(base))
	assert.Nil(t, ev.ProcessedAt)

	_, err = s.Get(context.Background(), id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertRejectsZeroTimestampAndDefaultsLevel(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(context.Background(), &models.Event{AttackType: "Bot"})
	assert.Error(t, err)

	id := insert(t, s, models.Event{AttackType: "Bot"})
	ev, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.LevelLow, ev.PriorityLevel)
}

func TestMarkProcessedKeepsFirstTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := insert(t, s, models.Event{AttackType: "Bot"})

	first := base.Add(2 * time.Hour)
	require.NoError(t, s.MarkProcessed(ctx, id, "triaged", first))
	require.NoError(t, s.MarkProcessed(ctx, id, "re-checked", first.Add(time.Hour)))

	ev, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ev.IsProcessed)
	assert.Equal(t, "re-checked", ev.Notes)
	require.NotNil(t, ev.ProcessedAt)
	assert.True(t, ev.ProcessedAt.Equal(first))

	err = s.MarkProcessed(ctx, id+1, "", first)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdatePriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := insert(t, s, models.Event{AttackType: "Bot", PriorityScore: 20})

	require.NoError(t, s.UpdatePriority(ctx, id, 88, models.LevelCritical))
	ev, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 88.0, ev.PriorityScore)
	assert.Equal(t, models.LevelCritical, ev.PriorityLevel)

	assert.ErrorIs(t, s.UpdatePriority(ctx, id+1, 10, models.LevelLow), ErrNotFound)
}

func TestUpdateScoresAndFrequencies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := insert(t, s, models.Event{SourceIP: "10.0.0.1", AttackType: "DDoS"})
	b := insert(t, s, models.Event{SourceIP: "10.0.0.1", AttackType: "DDoS"})
	insert(t, s, models.Event{SourceIP: "10.0.0.1", AttackType: "Bot"})

	n, err := s.UpdateScores(ctx, []ScoreUpdate{
		{ID: a, Score: 90, Level: models.LevelCritical},
		{ID: b, Score: 70, Level: models.LevelHigh},
		{ID: 999, Score: 1, Level: models.LevelLow},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	freq, err := s.Frequencies(ctx, []FrequencyKey{
		{SourceIP: "10.0.0.1", AttackType: "DDoS"},
		{SourceIP: "10.0.0.1", AttackType: "DDoS"},
		{SourceIP: "10.0.0.1", AttackType: "Bot"},
		{SourceIP: "10.9.9.9", AttackType: "Bot"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, freq[FrequencyKey{SourceIP: "10.0.0.1", AttackType: "DDoS"}])
	assert.Equal(t, 1, freq[FrequencyKey{SourceIP: "10.0.0.1", AttackType: "Bot"}])
	assert.Zero(t, freq[FrequencyKey{SourceIP: "10.9.9.9", AttackType: "Bot"}])
}

func seedAggregates(t *testing.T, s *Store) {
	t.Helper()
	sat := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	insert(t, s, models.Event{Timestamp: base, SourceIP: "10.0.0.1", DestinationIP: "192.168.1.1", DestinationPort: 3389,
		AttackType: "DDoS", PriorityScore: 90, PriorityLevel: models.LevelCritical})
	insert(t, s, models.Event{Timestamp: base.Add(30 * time.Minute), SourceIP: "10.0.0.1", DestinationIP: "192.168.1.1", DestinationPort: 3389,
		AttackType: "PortScan", PriorityScore: 70, PriorityLevel: models.LevelHigh})
	insert(t, s, models.Event{Timestamp: base.Add(time.Hour), SourceIP: "10.0.0.2", DestinationIP: "192.168.1.2", DestinationPort: 80,
		AttackType: "DDoS", PriorityScore: 50, PriorityLevel: models.LevelMedium})
	insert(t, s, models.Event{Timestamp: sat, SourceIP: "10.0.0.3", DestinationIP: "192.168.1.2", DestinationPort: 443,
		AttackType: models.BenignLabel, PriorityScore: 10, PriorityLevel: models.LevelLow})
}

func TestSummaryAndDistributions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedAggregates(t, s)

	sum, err := s.Summary(ctx, filter.Predicate{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.TotalEvents)
	assert.Equal(t, int64(1), sum.PriorityCritical)
	assert.Equal(t, int64(1), sum.PriorityHigh)
	assert.Equal(t, int64(1), sum.PriorityMedium)
	assert.Equal(t, int64(1), sum.PriorityLow)
	assert.Equal(t, 2.0, sum.DailyAverage)
	assert.Equal(t, 55.0, sum.AverageScore)
	assert.Equal(t, "DDoS", sum.MostCommonAttack)
	assert.Equal(t, int64(1), sum.UnprocessedCritical)

	levels, err := s.CountByLevel(ctx, compile(t, filter.Request{AttackTypes: []string{"DDoS"}}))
	require.NoError(t, err)
	require.Len(t, levels, 4)
	assert.Equal(t, models.LevelCritical, levels[0].Level)
	assert.Equal(t, int64(1), levels[0].Count)
	assert.Equal(t, int64(0), levels[1].Count)

	dist, err := s.CountByAttackType(ctx, filter.Predicate{})
	require.NoError(t, err)
	require.Len(t, dist, 3)
	assert.Equal(t, "DDoS", dist[0].AttackType)
	assert.Equal(t, 50.0, dist[0].Percentage)

	hours, err := s.CountByHour(ctx, filter.Predicate{})
	require.NoError(t, err)
	require.Len(t, hours, 3)
	assert.Equal(t, 3, hours[0].Hour)
	assert.Equal(t, 10, hours[1].Hour)
	assert.Equal(t, int64(2), hours[1].TotalEvents)
	assert.Equal(t, int64(1), hours[1].CriticalEvents)
	assert.Equal(t, int64(1), hours[1].HighEvents)
}

func TestTopNExcludesBenign(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedAggregates(t, s)
	require.NoError(t, s.SeedTables(ctx, scoring.Tables{
		Ports: map[int]scoring.PortEntry{3389: {Score: 95, Service: "RDP"}},
	}))

	ports, err := s.TopPorts(ctx, filter.Predicate{}, 10)
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, 3389, ports[0].DestinationPort)
	assert.Equal(t, int64(2), ports[0].Count)
	assert.Equal(t, "RDP", ports[0].ServiceName)
	require.NotNil(t, ports[0].CriticalityScore)
	assert.Equal(t, 95.0, *ports[0].CriticalityScore)
	assert.Nil(t, ports[1].CriticalityScore)

	sources, err := s.TopSources(ctx, filter.Predicate{}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "10.0.0.1", sources[0].IP)
	assert.Equal(t, int64(2), sources[0].Count)
	assert.Equal(t, 80.0, sources[0].AvgScore)
	assert.Equal(t, 90.0, sources[0].MaxScore)
	assert.Equal(t, int64(2), sources[0].AttackTypes)
	assert.True(t, sources[0].LastSeen.Equal(base.Add(30*time.Minute)))

	targets, err := s.TopDestinations(ctx, filter.Predicate{}, 1)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "192.168.1.1", targets[0].IP)
}

func TestTrendHeatmapAndKPI(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedAggregates(t, s)

	trend, err := s.Trend(ctx, base.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, "2026-01-07", trend[0].Date)
	assert.Equal(t, int64(3), trend[0].TotalEvents)
	assert.Equal(t, int64(3), trend[0].MaliciousEvents)
	assert.Equal(t, int64(1), trend[1].BenignEvents)
	assert.Equal(t, int64(1), trend[1].LowEvents)

	cells, err := s.RiskHeatmap(ctx, filter.Predicate{})
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, 3, cells[0].DayOfWeek)
	assert.Equal(t, 10, cells[0].Hour)
	assert.Equal(t, int64(2), cells[0].EventCount)
	assert.Equal(t, 80.0, cells[0].AvgPriority)

	kpi, err := s.KPI(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), kpi.TotalEvents)
	assert.Equal(t, int64(2), kpi.HighPriorityCount)
	assert.Equal(t, 70.0, kpi.AverageScore)
	require.NotEmpty(t, kpi.TopLabels)
	assert.Equal(t, "DDoS", kpi.TopLabels[0].AttackType)
	assert.Equal(t, int64(2), kpi.TopLabels[0].Count)
}

func TestLookupTablesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.LoadTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.AttackTypes)
	assert.Empty(t, empty.Ports)

	require.NoError(t, s.SeedTables(ctx, scoring.DefaultTables()))
	require.NoError(t, s.SeedTables(ctx, scoring.Tables{AttackTypes: map[string]float64{"DDoS": 60}}))

	got, err := s.LoadTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.AttackTypes["DDoS"])
	assert.Equal(t, "SSH", got.Ports[22].Service)
	assert.Len(t, got.Ports, len(scoring.DefaultTables().Ports))
}

func TestQueryTimeoutSurfacesAsAggregationTimeout(t *testing.T) {
	s := openTestStore(t)
	s.queryTimeout = time.Nanosecond
	time.Sleep(time.Millisecond)

	_, err := s.Count(context.Background(), filter.Predicate{})
	if err != nil {
		assert.ErrorIs(t, err, ErrAggregationTimeout)
	}
}
