package models

import "time"

// Summary holds the dashboard headline counters.
type Summary struct {
	TotalEvents         int64   `json:"total_events"`
	PriorityCritical    int64   `json:"priority_critical"`
	PriorityHigh        int64   `json:"priority_high"`
	PriorityMedium      int64   `json:"priority_medium"`
	PriorityLow         int64   `json:"priority_low"`
	DailyAverage        float64 `json:"daily_average"`
	AverageScore        float64 `json:"average_score"`
	MostCommonAttack    string  `json:"most_common_attack"`
	UnprocessedCritical int64   `json:"unprocessed_critical"`
}

// LevelCount is a count of events in one priority level.
type LevelCount struct {
	Level Level `json:"priority_level"`
	Count int64 `json:"count"`
}

// AttackTypeCount is one slice of the attack distribution.
type AttackTypeCount struct {
	AttackType string  `json:"attack_type"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// HourlyCount is the event volume for one hour of day.
type HourlyCount struct {
	Hour           int   `json:"hour"`
	TotalEvents    int64 `json:"total_events"`
	CriticalEvents int64 `json:"critical_events"`
	HighEvents     int64 `json:"high_events"`
	MediumEvents   int64 `json:"medium_events"`
}

// PortCount is a targeted destination port.
type PortCount struct {
	DestinationPort  int      `json:"destination_port"`
	Count            int64    `json:"count"`
	ServiceName      string   `json:"service_name,omitempty"`
	CriticalityScore *float64 `json:"criticality_score,omitempty"`
}

// HostStat ranks a source or destination address.
type HostStat struct {
	IP          string    `json:"ip"`
	Count       int64     `json:"count"`
	AvgScore    float64   `json:"avg_score"`
	MaxScore    float64   `json:"max_score"`
	AttackTypes int64     `json:"attack_types"`
	LastSeen    time.Time `json:"last_seen"`
}

// TrendPoint is one day of the trend series.
type TrendPoint struct {
	Date            string `json:"date"`
	TotalEvents     int64  `json:"total_events"`
	CriticalEvents  int64  `json:"critical_events"`
	HighEvents      int64  `json:"high_events"`
	MediumEvents    int64  `json:"medium_events"`
	LowEvents       int64  `json:"low_events"`
	MaliciousEvents int64  `json:"malicious_events"`
	BenignEvents    int64  `json:"benign_events"`
}

// HeatmapCell aggregates malicious events by weekday and hour.
// DayOfWeek is 0 for Sunday.
type HeatmapCell struct {
	DayOfWeek   int     `json:"day_of_week"`
	Hour        int     `json:"hour"`
	EventCount  int64   `json:"event_count"`
	AvgPriority float64 `json:"avg_priority"`
}

// KPI summarizes a bounded time window.
type KPI struct {
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	TotalEvents       int64             `json:"total_events"`
	HighPriorityCount int64             `json:"high_priority_count"`
	AverageScore      float64           `json:"average_score"`
	TopLabels         []AttackTypeCount `json:"top_labels"`
}
