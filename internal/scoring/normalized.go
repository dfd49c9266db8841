package scoring

import (
	"math"
	"strconv"
	"strings"

	"eventtriage/pkg/models"
)

// Breakdown keys for the normalized scheme.
const (
	FactorSeverity         = "severity"
	FactorAssetCriticality = "asset_criticality"
	FactorAttack           = "attack"
	FactorVolume           = "volume"
	FactorOvernight        = "overnight"
)

const (
	minOrdinal = 1
	maxOrdinal = 5
	// maxFlowBytesPerSecond is the byte-rate ceiling used for normalization.
	maxFlowBytesPerSecond = 1_000_000
)

// normalizedOrder fixes the summation order of the weighted factors.
var normalizedOrder = []string{FactorSeverity, FactorAssetCriticality, FactorAttack, FactorVolume, FactorOvernight}

var normalizedWeights = map[string]float64{
	FactorSeverity:         0.35,
	FactorAssetCriticality: 0.30,
	FactorAttack:           0.20,
	FactorVolume:           0.10,
	FactorOvernight:        0.05,
}

var severityOrdinal = map[string]float64{
	"critical":      5,
	"high":          4,
	"medium":        3,
	"low":           2,
	"info":          1,
	"informational": 1,
}

func (c *Calculator) scoreNormalized(ev *models.Event) models.ScoreResult {
	factors := map[string]float64{
		FactorSeverity:         normalize(parseSeverity(ev.Severity), minOrdinal, maxOrdinal),
		FactorAssetCriticality: normalize(optional(ev.AssetCriticality, minOrdinal), minOrdinal, maxOrdinal),
		FactorAttack:           indicator(c.isAttack(ev.AttackType)),
		FactorVolume:           normalize(optional(ev.FlowBytesPerSecond, 0), 0, maxFlowBytesPerSecond),
		FactorOvernight:        indicator(isOvernight(ev)),
	}

	total := 0.0
	parts := make(map[string]float64, len(factors))
	for _, k := range normalizedOrder {
		contrib := factors[k] * normalizedWeights[k]
		total += contrib
		parts[k] = round2(contrib * 100)
	}
	score := math.Round(clamp(total, 0, 1) * 100)

	return models.ScoreResult{
		Score:     score,
		Level:     c.Level(score),
		Scheme:    string(SchemeNormalized),
		Breakdown: parts,
	}
}

func (c *Calculator) isAttack(label string) bool {
	label = strings.TrimSpace(label)
	return label != "" && label != c.tables.BenignLabel && !strings.EqualFold(label, "normal")
}

// isOvernight reports a 01:00-04:59 UTC observation.
func isOvernight(ev *models.Event) bool {
	if ev.Timestamp.IsZero() {
		return false
	}
	h := ev.Timestamp.UTC().Hour()
	return h >= 1 && h <= 4
}

func parseSeverity(v string) float64 {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return minOrdinal
	}
	if n, ok := severityOrdinal[v]; ok {
		return n
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return n
	}
	return minOrdinal
}

func optional(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return *v
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return (clamp(v, lo, hi) - lo) / (hi - lo)
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
