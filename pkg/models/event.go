package models

import (
	"fmt"
	"time"
)

// BenignLabel is the attack_type recorded for non-malicious traffic.
const BenignLabel = "BENIGN"

// TimeLayout is the canonical text form of timestamps in the event table.
const TimeLayout = "2006-01-02 15:04:05"

// Event represents one recorded network flow and its triage state.
type Event struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	SourceIP        string    `json:"source_ip"`
	DestinationIP   string    `json:"destination_ip"`
	SourcePort      int       `json:"source_port"`
	DestinationPort int       `json:"destination_port"`
	Protocol        int       `json:"protocol"`
	AttackType      string    `json:"attack_type"`

	TotalFwdPackets       int64 `json:"total_fwd_packets"`
	TotalBwdPackets       int64 `json:"total_bwd_packets"`
	TotalLengthFwdPackets int64 `json:"total_length_fwd_packets"`
	TotalLengthBwdPackets int64 `json:"total_length_bwd_packets"`

	PriorityScore float64    `json:"priority_score"`
	PriorityLevel Level      `json:"priority_level"`
	IsProcessed   bool       `json:"is_processed"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`

	// Scoring inputs. Not stored in the event table.
	Frequency          int      `json:"frequency,omitempty"`
	Severity           string   `json:"severity,omitempty"`
	AssetCriticality   *float64 `json:"asset_criticality,omitempty"`
	FlowBytesPerSecond *float64 `json:"flow_bytes_per_s,omitempty"`
}

// TotalPackets returns forward plus backward packets.
func (e *Event) TotalPackets() int64 {
	if e == nil {
		return 0
	}
	return e.TotalFwdPackets + e.TotalBwdPackets
}

// TotalBytes returns forward plus backward payload bytes.
func (e *Event) TotalBytes() int64 {
	if e == nil {
		return 0
	}
	return e.TotalLengthFwdPackets + e.TotalLengthBwdPackets
}

// IsBenign reports whether the flow was classified as normal traffic.
func (e *Event) IsBenign() bool {
	return e != nil && e.AttackType == BenignLabel
}

// ProtocolName maps the IP protocol number to a display name.
func ProtocolName(proto int) string {
	switch proto {
	case 1:
		return "ICMP"
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	default:
		return fmt.Sprintf("PROTO-%d", proto)
	}
}

// RankedEvent is an event as returned to the triage queue.
type RankedEvent struct {
	Event
	TotalPackets   int64        `json:"total_packets"`
	TotalBytes     int64        `json:"total_bytes"`
	ProtocolName   string       `json:"protocol_name"`
	Analysis       *ScoreResult `json:"analysis,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`
}

// NewRankedEvent fills the derived view fields of ev.
func NewRankedEvent(ev Event) RankedEvent {
	return RankedEvent{
		Event:        ev,
		TotalPackets: ev.TotalPackets(),
		TotalBytes:   ev.TotalBytes(),
		ProtocolName: ProtocolName(ev.Protocol),
	}
}

// Pagination describes one page of a filtered listing.
type Pagination struct {
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	HasPrev     bool  `json:"has_prev"`
	HasNext     bool  `json:"has_next"`
}

// NewPagination computes page metadata for total rows.
func NewPagination(total int64, page, perPage int) Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		TotalPages:  totalPages,
		HasPrev:     page > 1,
		HasNext:     page < totalPages,
	}
}
