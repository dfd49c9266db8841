package pipeline

import (
	"context"

	"eventtriage/pkg/models"
)

// Source yields raw JSON event payloads.
type Source interface {
	PopBatch(ctx context.Context, limit int) ([][]byte, error)
	Close() error
}

// Ingester scores and stores events, returning the stored rows. On error it
// returns the prefix that was stored.
type Ingester interface {
	IngestEvents(ctx context.Context, events []models.Event) ([]models.Event, error)
}

// AlertWriter writes alert outputs.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}

// MultiAlertWriter fans alerts out to several writers.
type MultiAlertWriter []AlertWriter

// WriteAlerts writes to every writer and returns the first error.
func (m MultiAlertWriter) WriteAlerts(alerts []*models.Alert) error {
	var first error
	for _, w := range m {
		if err := w.WriteAlerts(alerts); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every writer and returns the first error.
func (m MultiAlertWriter) Close() error {
	var first error
	for _, w := range m {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
