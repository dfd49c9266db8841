// Package alerts escalates bursts of urgent events from one source.
package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventtriage/pkg/models"
)

// Config controls escalation.
type Config struct {
	// Window is how far back events from the same source are counted.
	Window time.Duration
	// Threshold is the minimum weighted level sum that raises an alert.
	Threshold int
	// MinLevel is the least urgent level that can trigger an alert.
	MinLevel models.Level
	// MaxEvidence caps the events kept per source and attached to an alert.
	MaxEvidence int
	Cooldown    time.Duration
}

// Escalator tracks recent scored events per source IP and raises alerts.
// It is safe for concurrent use.
type Escalator struct {
	mu       sync.Mutex
	cfg      Config
	bySource map[string]*sourceState
}

type sourceState struct {
	events    []models.Event
	lastAlert time.Time
}

// NewEscalator creates an escalator, filling unset config fields.
func NewEscalator(cfg Config) *Escalator {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 7
	}
	if !cfg.MinLevel.Valid() {
		cfg.MinLevel = models.LevelHigh
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 50
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &Escalator{cfg: cfg, bySource: make(map[string]*sourceState)}
}

// Add records stored events and returns any alerts they trigger. Events must
// carry their priority level; benign traffic is ignored.
func (e *Escalator) Add(events []models.Event) []*models.Alert {
	if len(events) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*models.Alert
	for _, ev := range events {
		if ev.SourceIP == "" || ev.IsBenign() || !ev.PriorityLevel.Valid() {
			continue
		}
		state := e.bySource[ev.SourceIP]
		if state == nil {
			state = &sourceState{}
			e.bySource[ev.SourceIP] = state
		}
		state.events = append(state.events, ev)
		e.prune(state, ev.Timestamp)

		if ev.PriorityLevel.Rank() < e.cfg.MinLevel.Rank() {
			continue
		}
		score := windowScore(state.events)
		if score < e.cfg.Threshold {
			continue
		}
		if !state.lastAlert.IsZero() && ev.Timestamp.Sub(state.lastAlert) < e.cfg.Cooldown {
			continue
		}

		state.lastAlert = ev.Timestamp
		out = append(out, e.build(ev, state.events, score))
	}
	return out
}

// Sources returns how many sources have live state.
func (e *Escalator) Sources() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bySource)
}

// Sweep forgets sources whose newest event is older than the window plus
// the cooldown, measured back from at.
func (e *Escalator) Sweep(at time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := at.Add(-(e.cfg.Window + e.cfg.Cooldown))
	removed := 0
	for ip, state := range e.bySource {
		if n := len(state.events); n == 0 || state.events[n-1].Timestamp.Before(cutoff) {
			delete(e.bySource, ip)
			removed++
		}
	}
	return removed
}

// prune drops events that fell out of the window ending at at. Events arrive
// roughly in time order, so only the head is checked.
func (e *Escalator) prune(state *sourceState, at time.Time) {
	cutoff := at.Add(-e.cfg.Window)
	idx := 0
	for idx < len(state.events) && state.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		state.events = state.events[idx:]
	}
	if len(state.events) > e.cfg.MaxEvidence {
		state.events = state.events[len(state.events)-e.cfg.MaxEvidence:]
	}
}

func (e *Escalator) build(trigger models.Event, events []models.Event, score int) *models.Alert {
	alert := &models.Alert{
		AlertID:     uuid.NewString(),
		SourceIP:    trigger.SourceIP,
		Score:       score,
		Level:       trigger.PriorityLevel,
		WindowStart: trigger.Timestamp.Add(-e.cfg.Window),
		WindowEnd:   trigger.Timestamp,
		Evidence:    make([]models.AlertRef, 0, len(events)),
	}

	attackTypes := make(map[string]struct{})
	targets := make(map[string]struct{})
	for _, ev := range events {
		switch ev.PriorityLevel {
		case models.LevelCritical:
			alert.Counts.Critical++
		case models.LevelHigh:
			alert.Counts.High++
		case models.LevelMedium:
			alert.Counts.Medium++
		case models.LevelLow:
			alert.Counts.Low++
		}
		if ev.PriorityLevel.Rank() > alert.Level.Rank() {
			alert.Level = ev.PriorityLevel
		}
		attackTypes[ev.AttackType] = struct{}{}
		if ev.DestinationIP != "" {
			targets[ev.DestinationIP] = struct{}{}
		}
		alert.Evidence = append(alert.Evidence, models.AlertRef{
			EventID:         ev.ID,
			Timestamp:       ev.Timestamp,
			DestinationIP:   ev.DestinationIP,
			DestinationPort: ev.DestinationPort,
			AttackType:      ev.AttackType,
			PriorityScore:   ev.PriorityScore,
			PriorityLevel:   ev.PriorityLevel,
		})
	}
	alert.Counts.Targets = len(targets)
	for t := range attackTypes {
		alert.AttackTypes = append(alert.AttackTypes, t)
	}
	sort.Strings(alert.AttackTypes)
	return alert
}

func windowScore(events []models.Event) int {
	score := 0
	for _, ev := range events {
		score += levelWeight(ev.PriorityLevel)
	}
	return score
}

func levelWeight(l models.Level) int {
	switch l {
	case models.LevelCritical:
		return 7
	case models.LevelHigh:
		return 5
	case models.LevelMedium:
		return 3
	default:
		return 1
	}
}
