package scoring

// immediateMargin is how far above the critical threshold a score must be to
// call for an immediate response.
const immediateMargin = 10

// Recommendation returns the analyst action text for a scored event. The
// tiers follow the calculator's level thresholds.
func (c *Calculator) Recommendation(score float64, attackType string) string {
	t := c.cfg.Thresholds
	switch {
	case score >= min(t.Critical+immediateMargin, 100):
		return "Immediate response required: notify the security team now."
	case score >= t.Critical:
		return "Critical event: handle before any other queue item."
	case score >= t.High:
		return "High priority: keep under close watch and analyse."
	case score >= t.Medium:
		return "Medium priority: review within the normal workflow."
	case attackType == c.tables.BenignLabel:
		return "Normal traffic: no action needed."
	default:
		return "Low priority: review during routine checks."
	}
}
