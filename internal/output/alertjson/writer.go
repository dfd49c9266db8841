// Package alertjson appends escalation alerts to a JSON lines file.
package alertjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"eventtriage/internal/logger"
	"eventtriage/pkg/models"
)

// Writer appends alerts to a JSON lines file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewWriter opens path for appending, creating parent directories.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("alert file path is empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create alert directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open alert file: %w", err)
	}

	logger.Infof("Alert JSON writer initialized: %s", path)
	buf := bufio.NewWriter(f)
	return &Writer{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// WriteAlerts appends one line per alert and flushes.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("alert writer is closed")
	}
	for _, a := range alerts {
		if a == nil {
			continue
		}
		if err := w.enc.Encode(a); err != nil {
			return fmt.Errorf("encode alert %s: %w", a.AlertID, err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush alerts: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}
