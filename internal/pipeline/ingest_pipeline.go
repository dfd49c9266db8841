package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"eventtriage/internal/alerts"
	"eventtriage/internal/logger"
	"eventtriage/internal/metrics"
	"eventtriage/pkg/models"
)

// Config tunes the ingest pipeline.
type Config struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	// MaxRetries bounds ingest attempts per batch before it is dropped.
	MaxRetries   int
	RetryBackoff time.Duration
}

// IngestPipeline streams events from a queue into the store and escalates
// bursts of urgent events.
type IngestPipeline struct {
	source      Source
	ingester    Ingester
	escalator   *alerts.Escalator
	alertWriter AlertWriter
	cfg         Config
}

// NewIngestPipeline creates a pipeline. escalator and alertWriter may be nil.
func NewIngestPipeline(source Source, ingester Ingester, escalator *alerts.Escalator, alertWriter AlertWriter, cfg Config) *IngestPipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &IngestPipeline{
		source:      source,
		ingester:    ingester,
		escalator:   escalator,
		alertWriter: alertWriter,
		cfg:         cfg,
	}
}

// Run consumes until ctx is done, then drains what was already popped and
// flushes it before returning.
func (p *IngestPipeline) Run(ctx context.Context) error {
	logger.Infof("Ingest pipeline started: workers=%d batch=%d flush=%s", p.cfg.Workers, p.cfg.BatchSize, p.cfg.FlushInterval)

	msgCh := make(chan []byte, p.cfg.Workers*4)
	eventCh := make(chan models.Event, p.cfg.Workers*4)

	go func() {
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	var workers sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.decodeLoop(msgCh, eventCh)
		}()
	}
	go func() {
		workers.Wait()
		close(eventCh)
	}()

	p.writeLoop(context.WithoutCancel(ctx), eventCh)
	logger.Infof("Ingest pipeline stopped")
	return nil
}

// Close releases the source and alert outputs.
func (p *IngestPipeline) Close() error {
	var first error
	if p.alertWriter != nil {
		if err := p.alertWriter.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
			first = err
		}
	}
	if p.source != nil {
		if err := p.source.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *IngestPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for ctx.Err() == nil {
		payloads, err := p.source.PopBatch(ctx, p.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Errorf("Failed to pop queued events: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		// Popped payloads are always handed on; downstream drains until close.
		for _, payload := range payloads {
			out <- payload
		}
	}
}

func (p *IngestPipeline) decodeLoop(in <-chan []byte, out chan<- models.Event) {
	for payload := range in {
		ev, err := decodeEvent(payload)
		if err != nil {
			metrics.PipelineEvents.WithLabelValues("invalid").Inc()
			logger.Warnf("Skipping queued event: %v", err)
			continue
		}
		out <- ev
	}
}

var errMissingAttackType = errors.New("attack_type is required")

func decodeEvent(payload []byte) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.Event{}, err
	}
	if ev.AttackType == "" {
		return models.Event{}, errMissingAttackType
	}
	ev.ID = 0
	ev.IsProcessed = false
	ev.ProcessedAt = nil
	return ev, nil
}

func (p *IngestPipeline) writeLoop(ctx context.Context, in <-chan models.Event) {
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.Event, 0, p.cfg.BatchSize)
	var latest time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		stored := p.ingest(ctx, batch)
		for _, ev := range stored {
			if ev.Timestamp.After(latest) {
				latest = ev.Timestamp
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ticker.C:
			flush()
			if p.escalator != nil && !latest.IsZero() {
				p.escalator.Sweep(latest)
			}
		case ev, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		}
	}
}

// ingest stores batch, retrying the unstored tail up to MaxRetries times.
func (p *IngestPipeline) ingest(ctx context.Context, batch []models.Event) []models.Event {
	var all []models.Event
	pending := batch
	for attempt := 1; len(pending) > 0; attempt++ {
		stored, err := p.ingester.IngestEvents(ctx, pending)
		if len(stored) > 0 {
			metrics.PipelineEvents.WithLabelValues("ingested").Add(float64(len(stored)))
			all = append(all, stored...)
			p.escalate(stored)
		}
		if err == nil {
			break
		}
		pending = pending[len(stored):]
		if attempt >= p.cfg.MaxRetries {
			metrics.PipelineEvents.WithLabelValues("dropped").Add(float64(len(pending)))
			logger.Errorf("Dropping %d events after %d ingest attempts: %v", len(pending), attempt, err)
			break
		}
		logger.Warnf("Ingest attempt %d failed, retrying %d events: %v", attempt, len(pending), err)
		time.Sleep(p.cfg.RetryBackoff)
	}
	return all
}

func (p *IngestPipeline) escalate(stored []models.Event) {
	if p.escalator == nil {
		return
	}
	raised := p.escalator.Add(stored)
	if len(raised) == 0 {
		return
	}
	for _, a := range raised {
		metrics.AlertsRaised.WithLabelValues(string(a.Level)).Inc()
		logger.Warnf("Alert raised: id=%s source=%s level=%s score=%d events=%d",
			a.AlertID, a.SourceIP, a.Level, a.Score, len(a.Evidence))
	}
	if p.alertWriter == nil {
		return
	}
	if err := p.alertWriter.WriteAlerts(raised); err != nil {
		logger.Errorf("Failed to write %d alerts: %v", len(raised), err)
	}
}
