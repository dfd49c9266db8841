package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventtriage/internal/filter"
	"eventtriage/pkg/models"
)

var errBadParam = errors.New("invalid parameter")

func badParam(name, reason string) error {
	return fmt.Errorf("%w %s: %s", errBadParam, name, reason)
}

const dateOnly = "2006-01-02"

var timeLayouts = []string{time.RFC3339, models.TimeLayout, "2006-01-02T15:04:05", "2006-01-02T15:04", dateOnly}

// parseFilter reads the listing filters from the query string. Set-valued
// filters accept repeated keys, PHP-style "[]" keys and comma lists.
func parseFilter(c *gin.Context) (filter.Request, error) {
	var req filter.Request
	var err error

	if req.StartDate, err = timeQuery(c, "start_date", false); err != nil {
		return req, err
	}
	if req.EndDate, err = timeQuery(c, "end_date", true); err != nil {
		return req, err
	}
	req.AttackTypes = listQuery(c, "attack_types")
	req.PriorityLevels = listQuery(c, "priority_levels")
	for _, l := range req.PriorityLevels {
		if _, ok := models.ParseLevel(l); !ok {
			return req, badParam("priority_levels", fmt.Sprintf("unknown level %q", l))
		}
	}
	req.SourceIP = strings.TrimSpace(c.Query("source_ip"))
	req.DestinationIP = strings.TrimSpace(c.Query("destination_ip"))
	req.Search = strings.TrimSpace(c.Query("search"))

	if v := strings.TrimSpace(c.Query("destination_port")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return req, badParam("destination_port", "must be 0-65535")
		}
		req.DestinationPort = &port
	}
	if v := strings.TrimSpace(c.Query("is_processed")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, badParam("is_processed", "must be a boolean")
		}
		req.IsProcessed = &b
	}
	return req, nil
}

func listQuery(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range append(c.QueryArray(key), c.QueryArray(key+"[]")...) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// timeQuery parses an optional timestamp. A date-only value used as an upper
// bound means the end of that day.
func timeQuery(c *gin.Context, key string, upper bool) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err != nil {
			continue
		}
		if layout == dateOnly && upper {
			t = t.Add(24*time.Hour - time.Second)
		}
		return &t, nil
	}
	return nil, badParam(key, "unrecognized time format")
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badParam(key, "must be an integer")
	}
	return n, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
