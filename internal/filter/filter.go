// Package filter compiles structured event filters into parameterized SQL
// predicates.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"eventtriage/pkg/models"
)

// ErrInvalidFilterRange is returned when the date bounds are inverted or
// span more than the allowed maximum.
var ErrInvalidFilterRange = errors.New("invalid filter range")

// Request carries the recognized optional filters. Nil or empty fields impose
// no constraint.
type Request struct {
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	AttackTypes     []string   `json:"attack_types,omitempty"`
	PriorityLevels  []string   `json:"priority_levels,omitempty"`
	SourceIP        string     `json:"source_ip,omitempty"`
	DestinationIP   string     `json:"destination_ip,omitempty"`
	DestinationPort *int       `json:"destination_port,omitempty"`
	IsProcessed     *bool      `json:"is_processed,omitempty"`
	Search          string     `json:"search,omitempty"`
}

// Options bound what a request may ask for.
type Options struct {
	// MaxSpan caps end_date - start_date. Zero disables the check.
	MaxSpan time.Duration
}

// Predicate is a compiled WHERE condition with its bound arguments.
// The zero value matches every row.
type Predicate struct {
	clauses []string
	args    []any
}

// Compile validates req and translates it to a predicate. User values are
// only ever passed as bound parameters.
func Compile(req Request, opts Options) (Predicate, error) {
	if req.StartDate != nil && req.EndDate != nil {
		start, end := *req.StartDate, *req.EndDate
		if end.Before(start) {
			return Predicate{}, fmt.Errorf("%w: end_date %s precedes start_date %s",
				ErrInvalidFilterRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
		}
		if opts.MaxSpan > 0 && end.Sub(start) > opts.MaxSpan {
			return Predicate{}, fmt.Errorf("%w: range %s exceeds maximum %s",
				ErrInvalidFilterRange, end.Sub(start), opts.MaxSpan)
		}
	}

	var p Predicate
	if req.StartDate != nil {
		p = p.And("timestamp >= ?", FormatTime(*req.StartDate))
	}
	if req.EndDate != nil {
		p = p.And("timestamp <= ?", FormatTime(*req.EndDate))
	}
	if types := normalizeSet(req.AttackTypes); len(types) > 0 {
		p = p.And("attack_type IN ("+placeholders(len(types))+")", toArgs(types)...)
	}
	if levels := normalizeSet(req.PriorityLevels); len(levels) > 0 {
		p = p.And("priority_level IN ("+placeholders(len(levels))+")", toArgs(levels)...)
	}
	if v := strings.TrimSpace(req.SourceIP); v != "" {
		p = p.And(`source_ip LIKE ? ESCAPE '\'`, contains(v))
	}
	if v := strings.TrimSpace(req.DestinationIP); v != "" {
		p = p.And(`destination_ip LIKE ? ESCAPE '\'`, contains(v))
	}
	if req.DestinationPort != nil {
		p = p.And("destination_port = ?", *req.DestinationPort)
	}
	if req.IsProcessed != nil {
		p = p.And("is_processed = ?", boolInt(*req.IsProcessed))
	}
	if v := strings.TrimSpace(req.Search); v != "" {
		pattern := contains(v)
		p = p.And(`(source_ip LIKE ? ESCAPE '\' OR destination_ip LIKE ? ESCAPE '\' OR attack_type LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern)
	}
	return p, nil
}

// And returns a new predicate with clause AND-ed on. The receiver is not
// modified.
func (p Predicate) And(clause string, args ...any) Predicate {
	out := Predicate{
		clauses: make([]string, 0, len(p.clauses)+1),
		args:    make([]any, 0, len(p.args)+len(args)),
	}
	out.clauses = append(append(out.clauses, p.clauses...), clause)
	out.args = append(append(out.args, p.args...), args...)
	return out
}

// Where renders the condition, or "" for the match-all predicate.
func (p Predicate) Where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

// Args returns a copy of the bound arguments in placeholder order.
func (p Predicate) Args() []any {
	return append([]any(nil), p.args...)
}

// Empty reports whether the predicate matches every row.
func (p Predicate) Empty() bool {
	return len(p.clauses) == 0
}

// String is used in cache keys and debug logs.
func (p Predicate) String() string {
	if p.Empty() {
		return "all"
	}
	return fmt.Sprintf("%s %v", strings.Join(p.clauses, " AND "), p.args)
}

// FormatTime renders t in the event table's timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(models.TimeLayout)
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
