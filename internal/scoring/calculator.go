// Package scoring turns an event record into a comparable urgency score.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"eventtriage/pkg/models"
)

// Scheme selects the scoring formula used by a deployment.
type Scheme string

const (
	// SchemeFiveFactor is the packet/byte driven weighted sum (weights sum to 100).
	SchemeFiveFactor Scheme = "five_factor"
	// SchemeNormalized is the severity/criticality driven weighted sum (weights sum to 1).
	SchemeNormalized Scheme = "normalized"
)

// ParseScheme maps a config value to a scheme.
func ParseScheme(v string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", string(SchemeFiveFactor), "a":
		return SchemeFiveFactor, nil
	case string(SchemeNormalized), "b":
		return SchemeNormalized, nil
	default:
		return "", fmt.Errorf("unknown scoring scheme %q", v)
	}
}

// Thresholds are the minimum scores of the critical, high and medium levels.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultThresholds returns 80/60/40.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 80, High: 60, Medium: 40}
}

// Level buckets a score.
func (t Thresholds) Level(score float64) models.Level {
	switch {
	case score >= t.Critical:
		return models.LevelCritical
	case score >= t.High:
		return models.LevelHigh
	case score >= t.Medium:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// Weights are the five-factor weights in percent.
type Weights struct {
	AttackType      float64
	TrafficVolume   float64
	PortCriticality float64
	Frequency       float64
	TimeFactor      float64
}

// DefaultWeights returns 40/25/20/10/5.
func DefaultWeights() Weights {
	return Weights{AttackType: 40, TrafficVolume: 25, PortCriticality: 20, Frequency: 10, TimeFactor: 5}
}

func (w Weights) sum() float64 {
	return w.AttackType + w.TrafficVolume + w.PortCriticality + w.Frequency + w.TimeFactor
}

// Config controls calculator behavior.
type Config struct {
	Scheme     Scheme
	Thresholds Thresholds
	Weights    Weights
	// WorkStart and WorkEnd bound working hours as [start, end).
	WorkStart int
	WorkEnd   int
	// Location is used for the five-factor time of day checks.
	Location *time.Location
}

// Calculator scores events. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	cfg    Config
	tables Tables
}

// NewCalculator validates cfg and returns a calculator over tables.
func NewCalculator(cfg Config, tables Tables) (*Calculator, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = SchemeFiveFactor
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.WorkStart == 0 && cfg.WorkEnd == 0 {
		cfg.WorkStart, cfg.WorkEnd = 9, 18
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	if cfg.Scheme != SchemeFiveFactor && cfg.Scheme != SchemeNormalized {
		return nil, fmt.Errorf("unknown scoring scheme %q", cfg.Scheme)
	}
	t := cfg.Thresholds
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > 0 && t.Critical <= 100) {
		return nil, fmt.Errorf("thresholds must satisfy 0 < medium < high < critical <= 100, got %+v", t)
	}
	if math.Abs(cfg.Weights.sum()-100) > 1e-6 {
		return nil, fmt.Errorf("five-factor weights must sum to 100, got %.2f", cfg.Weights.sum())
	}
	if cfg.WorkStart < 0 || cfg.WorkEnd > 24 || cfg.WorkStart >= cfg.WorkEnd {
		return nil, fmt.Errorf("invalid working hours %d-%d", cfg.WorkStart, cfg.WorkEnd)
	}

	if tables.AttackTypes == nil && tables.Ports == nil {
		tables = DefaultTables()
	}
	if tables.DefaultAttackSeverity <= 0 {
		tables.DefaultAttackSeverity = 25
	}
	if tables.BenignLabel == "" {
		tables.BenignLabel = models.BenignLabel
	}

	return &Calculator{cfg: cfg, tables: tables.clone()}, nil
}

// WithTables returns a calculator with the same config over different tables.
func (c *Calculator) WithTables(tables Tables) (*Calculator, error) {
	return NewCalculator(c.cfg, tables)
}

// Scheme returns the configured scheme.
func (c *Calculator) Scheme() Scheme {
	return c.cfg.Scheme
}

// Thresholds returns the configured level thresholds.
func (c *Calculator) Thresholds() Thresholds {
	return c.cfg.Thresholds
}

// Tables returns a copy of the lookup tables.
func (c *Calculator) Tables() Tables {
	return c.tables.clone()
}

// Score computes score, level and per-factor breakdown for ev.
// Missing optional fields fall back to documented defaults.
func (c *Calculator) Score(ev *models.Event) models.ScoreResult {
	if ev == nil {
		ev = &models.Event{}
	}
	if c.cfg.Scheme == SchemeNormalized {
		return c.scoreNormalized(ev)
	}
	return c.scoreFiveFactor(ev)
}

// Level buckets score with the configured thresholds.
func (c *Calculator) Level(score float64) models.Level {
	return c.cfg.Thresholds.Level(score)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
