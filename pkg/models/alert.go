package models

import "time"

// Alert is raised when one source accumulates enough urgent events within a
// time window.
type Alert struct {
	AlertID     string      `json:"alert_id"`
	SourceIP    string      `json:"source_ip"`
	Score       int         `json:"score"`
	Level       Level       `json:"level"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	AttackTypes []string    `json:"attack_types,omitempty"`
	Counts      AlertCounts `json:"counts"`
	Evidence    []AlertRef  `json:"evidence,omitempty"`
}

// AlertCounts breaks the window down by level.
type AlertCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Targets  int `json:"targets"`
}

// AlertRef points at one stored event behind an alert.
type AlertRef struct {
	EventID         int64     `json:"event_id"`
	Timestamp       time.Time `json:"timestamp"`
	DestinationIP   string    `json:"destination_ip"`
	DestinationPort int       `json:"destination_port"`
	AttackType      string    `json:"attack_type"`
	PriorityScore   float64   `json:"priority_score"`
	PriorityLevel   Level     `json:"priority_level"`
}
