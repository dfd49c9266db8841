// Package alerthttp posts escalation alerts to a webhook.
package alerthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"eventtriage/pkg/models"
)

// Config configures the webhook writer.
type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// Writer posts alert batches as {"alerts": [...], "sent_at": ...}.
type Writer struct {
	url     string
	headers map[string]string
	client  *http.Client
	timeout time.Duration
}

type payload struct {
	Alerts []*models.Alert `json:"alerts"`
	SentAt time.Time       `json:"sent_at"`
}

// NewWriter creates a webhook writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("alert webhook URL is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Writer{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{},
		timeout: cfg.Timeout,
	}, nil
}

// WriteAlerts posts one batch. Non-2xx responses are errors.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	body, err := json.Marshal(payload{Alerts: alerts, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alerts: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post alerts: status %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	return nil
}

// Close releases idle connections.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
