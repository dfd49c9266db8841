package models

import "strings"

// Level is the coarse urgency bucket derived from a score.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
)

// Levels lists every level from most to least urgent.
var Levels = []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow}

// ParseLevel normalizes s and reports whether it names a level.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// Valid reports whether l is one of the four levels.
func (l Level) Valid() bool {
	switch l {
	case LevelCritical, LevelHigh, LevelMedium, LevelLow:
		return true
	}
	return false
}

// ScoreResult is the outcome of scoring one event.
type ScoreResult struct {
	Score     float64            `json:"score"`
	Level     Level              `json:"level"`
	Scheme    string             `json:"scheme"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// Rank orders levels: critical 4 down to low 1, unknown 0.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	}
	return 0
}
