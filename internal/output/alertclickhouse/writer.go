// Package alertclickhouse archives escalation alerts in ClickHouse over its
// HTTP interface.
package alertclickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventtriage/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts alerts as JSONEachRow rows.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	timeout  time.Duration
}

// row is the flattened column layout of the alerts table.
type row struct {
	AlertID     string   `json:"alert_id"`
	SourceIP    string   `json:"source_ip"`
	Score       int      `json:"score"`
	Level       string   `json:"level"`
	WindowStart string   `json:"window_start"`
	WindowEnd   string   `json:"window_end"`
	AttackTypes []string `json:"attack_types"`
	Critical    int      `json:"critical_events"`
	High        int      `json:"high_events"`
	Medium      int      `json:"medium_events"`
	Low         int      `json:"low_events"`
	Targets     int      `json:"targets"`
	EventIDs    []int64  `json:"event_ids"`
}

// NewWriter creates a ClickHouse writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "triage_alerts"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(q)

	headers := make(map[string]string, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{endpoint: endpoint, headers: headers, client: &http.Client{}, timeout: cfg.Timeout}, nil
}

// WriteAlerts inserts one row per alert.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	n := 0
	for _, a := range alerts {
		if a == nil {
			continue
		}
		if err := enc.Encode(toRow(a)); err != nil {
			return fmt.Errorf("encode alert %s: %w", a.AlertID, err)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("build clickhouse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("insert alerts: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("insert alerts: status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases idle connections.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func toRow(a *models.Alert) row {
	r := row{
		AlertID:     a.AlertID,
		SourceIP:    a.SourceIP,
		Score:       a.Score,
		Level:       string(a.Level),
		WindowStart: a.WindowStart.UTC().Format(models.TimeLayout),
		WindowEnd:   a.WindowEnd.UTC().Format(models.TimeLayout),
		AttackTypes: a.AttackTypes,
		Critical:    a.Counts.Critical,
		High:        a.Counts.High,
		Medium:      a.Counts.Medium,
		Low:         a.Counts.Low,
		Targets:     a.Counts.Targets,
		EventIDs:    make([]int64, 0, len(a.Evidence)),
	}
	if r.AttackTypes == nil {
		r.AttackTypes = []string{}
	}
	for _, ev := range a.Evidence {
		r.EventIDs = append(r.EventIDs, ev.EventID)
	}
	return r
}

func quoteIdent(v string) string {
	return "`" + strings.ReplaceAll(v, "`", "") + "`"
}
