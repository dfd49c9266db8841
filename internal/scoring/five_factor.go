package scoring

import (
	"math"
	"time"

	"eventtriage/pkg/models"
)

// Breakdown keys for the five-factor scheme.
const (
	FactorAttackType      = "attack_type"
	FactorTrafficVolume   = "traffic_volume"
	FactorPortCriticality = "port_criticality"
	FactorFrequency       = "frequency"
	FactorTimeFactor      = "time_factor"
)

func (c *Calculator) scoreFiveFactor(ev *models.Event) models.ScoreResult {
	w := c.cfg.Weights
	attack := c.AttackSeverity(ev.AttackType) * w.AttackType / 100
	volume := TrafficVolumeScore(ev.TotalPackets(), ev.TotalBytes()) * w.TrafficVolume / 100
	port := c.PortScore(ev.DestinationPort) * w.PortCriticality / 100
	freq := FrequencyScore(ev.Frequency) * w.Frequency / 100
	tod := c.TimeScore(ev.Timestamp) * w.TimeFactor / 100

	total := attack + volume + port + freq + tod
	parts := map[string]float64{
		FactorAttackType:      round2(attack),
		FactorTrafficVolume:   round2(volume),
		FactorPortCriticality: round2(port),
		FactorFrequency:       round2(freq),
		FactorTimeFactor:      round2(tod),
	}
	score := round2(clamp(total, 0, 100))

	return models.ScoreResult{
		Score:     score,
		Level:     c.Level(score),
		Scheme:    string(SchemeFiveFactor),
		Breakdown: parts,
	}
}

// AttackSeverity returns the 0-100 severity of an attack label.
// The benign label always scores 0; unknown labels get the default severity.
func (c *Calculator) AttackSeverity(label string) float64 {
	if label == c.tables.BenignLabel {
		return 0
	}
	if v, ok := c.tables.AttackTypes[label]; ok {
		return v
	}
	return c.tables.DefaultAttackSeverity
}

// TrafficVolumeScore scores traffic on a log scale: every 10x increase adds a
// fixed 10 points per term, each term capped at 50.
func TrafficVolumeScore(totalPackets, totalBytes int64) float64 {
	packetScore := 0.0
	if totalPackets > 0 {
		packetScore = math.Min(50, math.Log10(float64(totalPackets)+1)*10)
	}
	byteScore := 0.0
	if totalBytes > 0 {
		byteScore = math.Min(50, math.Log10(float64(totalBytes)/1000+1)*10)
	}
	return packetScore + byteScore
}

// PortScore returns the criticality of a destination port.
func (c *Calculator) PortScore(port int) float64 {
	if e, ok := c.tables.Ports[port]; ok {
		return e.Score
	}
	switch {
	case port <= 1024:
		return 40
	case port <= 49151:
		return 20
	default:
		return 10
	}
}

// FrequencyScore scores repeats of the same source and attack type.
// A first occurrence scores 20 and each repeat adds 10, up to 100.
func FrequencyScore(repeatCount int) float64 {
	if repeatCount < 1 {
		repeatCount = 1
	}
	return math.Min(100, 20+float64(repeatCount-1)*10)
}

// TimeScore rates how unusual the observation time is.
func (c *Calculator) TimeScore(ts time.Time) float64 {
	if ts.IsZero() {
		return 50
	}
	t := ts.In(c.cfg.Location)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return 80
	}
	hour := t.Hour()
	switch {
	case hour >= c.cfg.WorkStart && hour < c.cfg.WorkEnd:
		return 40
	case hour < 6:
		return 90
	default:
		return 70
	}
}
