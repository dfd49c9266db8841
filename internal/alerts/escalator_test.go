package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventtriage/pkg/models"
)

var base = time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

func ev(id int64, src string, offset time.Duration, level models.Level) models.Event {
	return models.Event{
		ID:              id,
		Timestamp:       base.Add(offset),
		SourceIP:        src,
		DestinationIP:   "192.168.0.10",
		DestinationPort: 22,
		AttackType:      "SSH-Patator",
		PriorityLevel:   level,
	}
}

func TestSingleCriticalEventRaisesAlert(t *testing.T) {
	e := NewEscalator(Config{})
	out := e.Add([]models.Event{ev(1, "10.0.0.1", 0, models.LevelCritical)})
	require.Len(t, out, 1)

	a := out[0]
	assert.NotEmpty(t, a.AlertID)
	assert.Equal(t, "10.0.0.1", a.SourceIP)
	assert.Equal(t, 7, a.Score)
	assert.Equal(t, models.LevelCritical, a.Level)
	assert.Equal(t, 1, a.Counts.Critical)
	assert.Equal(t, 1, a.Counts.Targets)
	assert.Equal(t, []string{"SSH-Patator"}, a.AttackTypes)
	require.Len(t, a.Evidence, 1)
	assert.Equal(t, int64(1), a.Evidence[0].EventID)
}

func TestLowEventsAccumulateUntilUrgentTrigger(t *testing.T) {
	e := NewEscalator(Config{Threshold: 10})

	out := e.Add([]models.Event{
		ev(1, "10.0.0.1", 0, models.LevelMedium),
		ev(2, "10.0.0.1", time.Minute, models.LevelMedium),
		ev(3, "10.0.0.1", 2*time.Minute, models.LevelMedium),
	})
	assert.Empty(t, out, "medium events never trigger with the default min level")

	out = e.Add([]models.Event{ev(4, "10.0.0.1", 3*time.Minute, models.LevelHigh)})
	require.Len(t, out, 1)
	assert.Equal(t, 14, out[0].Score)
	assert.Equal(t, 3, out[0].Counts.Medium)
	assert.Equal(t, 1, out[0].Counts.High)
	assert.Equal(t, models.LevelHigh, out[0].Level)
}

func TestWindowDropsOldEvents(t *testing.T) {
	e := NewEscalator(Config{Threshold: 10, Window: 5 * time.Minute})
	e.Add([]models.Event{ev(1, "10.0.0.1", 0, models.LevelHigh)})

	out := e.Add([]models.Event{ev(2, "10.0.0.1", 10*time.Minute, models.LevelHigh)})
	assert.Empty(t, out)

	out = e.Add([]models.Event{ev(3, "10.0.0.1", 11*time.Minute, models.LevelHigh)})
	require.Len(t, out, 1)
	assert.Len(t, out[0].Evidence, 2)
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	e := NewEscalator(Config{Cooldown: 2 * time.Minute})

	out := e.Add([]models.Event{
		ev(1, "10.0.0.1", 0, models.LevelCritical),
		ev(2, "10.0.0.1", time.Minute, models.LevelCritical),
		ev(3, "10.0.0.2", time.Minute, models.LevelCritical),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "10.0.0.1", out[0].SourceIP)
	assert.Equal(t, "10.0.0.2", out[1].SourceIP)

	out = e.Add([]models.Event{ev(4, "10.0.0.1", 3*time.Minute, models.LevelCritical)})
	assert.Len(t, out, 1)
}

func TestBenignAndUnscoredEventsIgnored(t *testing.T) {
	e := NewEscalator(Config{})
	benign := ev(1, "10.0.0.1", 0, models.LevelCritical)
	benign.AttackType = models.BenignLabel

	out := e.Add([]models.Event{benign, ev(2, "10.0.0.2", 0, "")})
	assert.Empty(t, out)
	assert.Zero(t, e.Sources())
}

func TestSweepForgetsIdleSources(t *testing.T) {
	e := NewEscalator(Config{Window: 5 * time.Minute, Cooldown: 2 * time.Minute})
	e.Add([]models.Event{
		ev(1, "10.0.0.1", 0, models.LevelLow),
		ev(2, "10.0.0.2", 10*time.Minute, models.LevelLow),
	})
	require.Equal(t, 2, e.Sources())

	assert.Equal(t, 1, e.Sweep(base.Add(10*time.Minute)))
	assert.Equal(t, 1, e.Sources())
}
