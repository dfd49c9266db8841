package scoring

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"eventtriage/pkg/models"
)

func newTestCalculator(t *testing.T, scheme Scheme) *Calculator {
	t.Helper()
	c, err := NewCalculator(Config{Scheme: scheme, Location: time.UTC}, DefaultTables())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return c
}

func floatPtr(v float64) *float64 { return &v }

// 2026-01-07 is a Wednesday.
var weekday = time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

func TestFiveFactorDDoSScenarioIsCritical(t *testing.T) {
	c := newTestCalculator(t, SchemeFiveFactor)
	ev := &models.Event{
		AttackType:            "DDoS",
		TotalFwdPackets:       5000,
		TotalBwdPackets:       5000,
		TotalLengthFwdPackets: 2_000_000,
		DestinationPort:       3389,
		Frequency:             6,
		Timestamp:             weekday.Add(2 * time.Hour),
	}

	got := c.Score(ev)
	want := map[string]float64{
		FactorAttackType:      40,
		FactorPortCriticality: 19,
		FactorFrequency:       7,
		FactorTimeFactor:      4.5,
	}
	for k, v := range want {
		if got.Breakdown[k] != v {
			t.Fatalf("breakdown[%s]: want %.2f, got %.2f", k, v, got.Breakdown[k])
		}
	}
	traffic := got.Breakdown[FactorTrafficVolume]
	if traffic < 18 || traffic > 25 {
		t.Fatalf("traffic contribution should approach its 25 cap, got %.2f", traffic)
	}
	if got.Score < 85 || got.Score > 95 {
		t.Fatalf("unexpected total score %.2f", got.Score)
	}
	if got.Level != models.LevelCritical {
		t.Fatalf("expected critical, got %s", got.Level)
	}
	if got.Scheme != string(SchemeFiveFactor) {
		t.Fatalf("unexpected scheme %s", got.Scheme)
	}
}

func TestFiveFactorBenignMinimalIsLow(t *testing.T) {
	c := newTestCalculator(t, SchemeFiveFactor)
	ev := &models.Event{
		AttackType:      models.BenignLabel,
		DestinationPort: 60000,
		Timestamp:       weekday.Add(10 * time.Hour),
	}

	got := c.Score(ev)
	if got.Breakdown[FactorAttackType] != 0 {
		t.Fatalf("benign label must contribute 0, got %.2f", got.Breakdown[FactorAttackType])
	}
	if got.Breakdown[FactorTrafficVolume] != 0 {
		t.Fatalf("zero traffic must contribute 0, got %.2f", got.Breakdown[FactorTrafficVolume])
	}
	if got.Score > 10 {
		t.Fatalf("expected near-zero score, got %.2f", got.Score)
	}
	if got.Level != models.LevelLow {
		t.Fatalf("expected low, got %s", got.Level)
	}
}

func TestFiveFactorDefaultsForMissingFields(t *testing.T) {
	c := newTestCalculator(t, SchemeFiveFactor)

	if v := c.AttackSeverity("Never Seen Before"); v != 25 {
		t.Fatalf("unknown label: want 25, got %.2f", v)
	}
	if v := c.AttackSeverity(""); v != 25 {
		t.Fatalf("empty label: want 25, got %.2f", v)
	}
	if v := FrequencyScore(0); v != 20 {
		t.Fatalf("frequency 0: want 20, got %.2f", v)
	}
	if v := FrequencyScore(-3); v != 20 {
		t.Fatalf("negative frequency: want 20, got %.2f", v)
	}
	if v := FrequencyScore(50); v != 100 {
		t.Fatalf("frequency cap: want 100, got %.2f", v)
	}
	if v := c.TimeScore(time.Time{}); v != 50 {
		t.Fatalf("missing timestamp: want 50, got %.2f", v)
	}
	if v := TrafficVolumeScore(0, 0); v != 0 {
		t.Fatalf("zero traffic: want 0, got %.2f", v)
	}
	if v := TrafficVolumeScore(-5, -10); v != 0 {
		t.Fatalf("negative traffic: want 0, got %.2f", v)
	}

	got := c.Score(nil)
	if got.Score < 0 || got.Score > 100 || math.IsNaN(got.Score) {
		t.Fatalf("nil event produced invalid score %.2f", got.Score)
	}
}

func TestPortScoreTiers(t *testing.T) {
	c := newTestCalculator(t, SchemeFiveFactor)
	cases := map[int]float64{
		3389:  95,
		22:    90,
		1024:  40,
		0:     40,
		1025:  20,
		49151: 20,
		49152: 10,
		65535: 10,
	}
	for port, want := range cases {
		if got := c.PortScore(port); got != want {
			t.Fatalf("port %d: want %.0f, got %.0f", port, want, got)
		}
	}
}

func TestTimeScoreWindows(t *testing.T) {
	c := newTestCalculator(t, SchemeFiveFactor)
	saturday := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		ts   time.Time
		want float64
	}{
		{saturday, 80},
		{weekday.Add(3 * time.Hour), 90},
		{weekday.Add(9 * time.Hour), 40},
		{weekday.Add(17*time.Hour + 59*time.Minute), 40},
		{weekday.Add(18 * time.Hour), 70},
		{weekday.Add(7 * time.Hour), 70},
	}
	for _, tc := range cases {
		if got := c.TimeScore(tc.ts); got != tc.want {
			t.Fatalf("%s: want %.0f, got %.0f", tc.ts, tc.want, got)
		}
	}
}

func TestScoreIsBoundedAndLevelMatchesThresholds(t *testing.T) {
	for _, scheme := range []Scheme{SchemeFiveFactor, SchemeNormalized} {
		c := newTestCalculator(t, scheme)
		th := c.Thresholds()
		labels := []string{"", models.BenignLabel, "DDoS", "PortScan", "mystery"}
		ports := []int{0, 22, 3389, 8081, 60000}
		sizes := []int64{0, 1, 1_000, 1_000_000, math.MaxInt32}
		for _, label := range labels {
			for _, port := range ports {
				for _, size := range sizes {
					ev := &models.Event{
						AttackType:            label,
						DestinationPort:       port,
						TotalFwdPackets:       size,
						TotalLengthFwdPackets: size * 100,
						Frequency:             int(size % 17),
						Timestamp:             weekday.Add(time.Duration(size%24) * time.Hour),
						Severity:              "high",
						AssetCriticality:      floatPtr(float64(port % 7)),
						FlowBytesPerSecond:    floatPtr(float64(size)),
					}
					got := c.Score(ev)
					if got.Score < 0 || got.Score > 100 {
						t.Fatalf("%s: score out of range: %.2f", scheme, got.Score)
					}
					if got.Level != th.Level(got.Score) {
						t.Fatalf("%s: level %s does not match score %.2f", scheme, got.Level, got.Score)
					}
				}
			}
		}
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	ev := &models.Event{AttackType: "Bot", DestinationPort: 445, TotalFwdPackets: 120, TotalLengthFwdPackets: 7919,
		Frequency: 3, Severity: "high", AssetCriticality: floatPtr(4), FlowBytesPerSecond: floatPtr(123457.89),
		Timestamp: weekday.Add(20 * time.Hour)}
	for _, scheme := range []Scheme{SchemeFiveFactor, SchemeNormalized} {
		c := newTestCalculator(t, scheme)
		first := c.Score(ev)
		for i := 0; i < 200; i++ {
			next := c.Score(ev)
			if math.Float64bits(next.Score) != math.Float64bits(first.Score) {
				t.Fatalf("%s run %d: score %v differs from %v", scheme, i, next.Score, first.Score)
			}
			if !reflect.DeepEqual(first, next) {
				t.Fatalf("%s run %d: %+v vs %+v", scheme, i, first, next)
			}
		}
	}
}

func TestFrequencyAndVolumeAreMonotonic(t *testing.T) {
	prev := -1.0
	for f := 0; f < 20; f++ {
		got := FrequencyScore(f)
		if got < prev {
			t.Fatalf("frequency score decreased at %d: %.2f < %.2f", f, got, prev)
		}
		prev = got
	}

	prev = -1.0
	for b := int64(0); b < 1<<40; b = b*3 + 1 {
		got := TrafficVolumeScore(100, b)
		if got < prev {
			t.Fatalf("volume score decreased at %d bytes: %.2f < %.2f", b, got, prev)
		}
		prev = got
	}
}

func TestNormalizedScheme(t *testing.T) {
	c := newTestCalculator(t, SchemeNormalized)

	full := c.Score(&models.Event{
		AttackType:         "DDoS",
		Severity:           "critical",
		AssetCriticality:   floatPtr(5),
		FlowBytesPerSecond: floatPtr(2_000_000),
		Timestamp:          weekday.Add(2 * time.Hour),
	})
	if full.Score != 100 || full.Level != models.LevelCritical {
		t.Fatalf("expected 100/critical, got %.2f/%s", full.Score, full.Level)
	}

	empty := c.Score(&models.Event{})
	if empty.Score != 0 || empty.Level != models.LevelLow {
		t.Fatalf("expected 0/low, got %.2f/%s", empty.Score, empty.Level)
	}

	mid := c.Score(&models.Event{
		AttackType: "PortScan",
		Severity:   "high",
		Timestamp:  weekday.Add(3 * time.Hour),
	})
	if mid.Score != 51 || mid.Level != models.LevelMedium {
		t.Fatalf("expected 51/medium, got %.2f/%s", mid.Score, mid.Level)
	}
	if mid.Breakdown[FactorAttack] != 20 {
		t.Fatalf("attack contribution: want 20, got %.2f", mid.Breakdown[FactorAttack])
	}

	normal := c.Score(&models.Event{AttackType: "Normal", Severity: "4"})
	if normal.Breakdown[FactorAttack] != 0 {
		t.Fatalf("Normal label must not count as an attack")
	}
	if normal.Breakdown[FactorSeverity] != 26.25 {
		t.Fatalf("numeric severity: want 26.25, got %.2f", normal.Breakdown[FactorSeverity])
	}
}

func TestConfigurableThresholds(t *testing.T) {
	c, err := NewCalculator(Config{
		Location:   time.UTC,
		Thresholds: Thresholds{Critical: 90, High: 70, Medium: 30},
	}, DefaultTables())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if got := c.Level(85); got != models.LevelHigh {
		t.Fatalf("85 with critical=90: want high, got %s", got)
	}
	if got := c.Level(35); got != models.LevelMedium {
		t.Fatalf("35 with medium=30: want medium, got %s", got)
	}
}

func TestRecommendationFollowsThresholds(t *testing.T) {
	c, err := NewCalculator(Config{
		Location:   time.UTC,
		Thresholds: Thresholds{Critical: 60, High: 45, Medium: 30},
	}, DefaultTables())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	cases := []struct {
		score  float64
		label  string
		level  models.Level
		prefix string
	}{
		{72, "DDoS", models.LevelCritical, "Immediate response"},
		{63.19, "SSH-Patator", models.LevelCritical, "Critical event"},
		{50, "PortScan", models.LevelHigh, "High priority"},
		{35, "PortScan", models.LevelMedium, "Medium priority"},
		{0, models.BenignLabel, models.LevelLow, "Normal traffic"},
		{10, "PortScan", models.LevelLow, "Low priority"},
	}
	for _, tc := range cases {
		if got := c.Level(tc.score); got != tc.level {
			t.Fatalf("level(%v): want %s, got %s", tc.score, tc.level, got)
		}
		if got := c.Recommendation(tc.score, tc.label); !strings.HasPrefix(got, tc.prefix) {
			t.Fatalf("recommendation(%v): want prefix %q, got %q", tc.score, tc.prefix, got)
		}
	}

	def := newTestCalculator(t, SchemeFiveFactor)
	if got := def.Recommendation(85, "DDoS"); !strings.HasPrefix(got, "Critical event") {
		t.Fatalf("default 85: got %q", got)
	}
	if got := def.Recommendation(90, "DDoS"); !strings.HasPrefix(got, "Immediate response") {
		t.Fatalf("default 90: got %q", got)
	}
}

func TestNewCalculatorRejectsBadConfig(t *testing.T) {
	if _, err := NewCalculator(Config{Weights: Weights{AttackType: 50, TrafficVolume: 10}}, DefaultTables()); err == nil {
		t.Fatalf("expected weight sum error")
	}
	if _, err := NewCalculator(Config{Thresholds: Thresholds{Critical: 50, High: 60, Medium: 40}}, DefaultTables()); err == nil {
		t.Fatalf("expected threshold order error")
	}
	if _, err := NewCalculator(Config{Scheme: "blend"}, DefaultTables()); err == nil {
		t.Fatalf("expected unknown scheme error")
	}
}

func TestLoadTablesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yml")
	data := []byte(`
default_attack_severity: 30
attack_types:
  PortScan: 60
  Cryptominer: 70
ports:
  6379:
    score: 88
    service: Redis
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write tables: %v", err)
	}

	tables, err := LoadTables(path)
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	c, err := NewCalculator(Config{Location: time.UTC}, tables)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if v := c.AttackSeverity("PortScan"); v != 60 {
		t.Fatalf("override: want 60, got %.0f", v)
	}
	if v := c.AttackSeverity("DDoS"); v != 100 {
		t.Fatalf("default kept: want 100, got %.0f", v)
	}
	if v := c.AttackSeverity("unknown"); v != 30 {
		t.Fatalf("default severity: want 30, got %.0f", v)
	}
	if v := c.PortScore(6379); v != 88 {
		t.Fatalf("port override: want 88, got %.0f", v)
	}
}

func TestParseScheme(t *testing.T) {
	if s, err := ParseScheme(""); err != nil || s != SchemeFiveFactor {
		t.Fatalf("empty scheme: %v %v", s, err)
	}
	if s, err := ParseScheme("Normalized"); err != nil || s != SchemeNormalized {
		t.Fatalf("normalized scheme: %v %v", s, err)
	}
	if _, err := ParseScheme("mixed"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}
