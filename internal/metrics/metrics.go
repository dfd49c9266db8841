// Package metrics holds the Prometheus collectors shared across the engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StoreQueryDuration observes aggregate store round trips by operation.
	StoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventtriage_store_query_duration_seconds",
			Help:    "Latency of event store queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	StoreQueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventtriage_store_query_errors_total",
			Help: "Failed event store queries",
		},
		[]string{"op", "reason"},
	)
	// CacheRequests counts stat cache lookups; result is hit, miss or error.
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventtriage_statcache_requests_total",
			Help: "Stat cache lookups by aggregation and result",
		},
		[]string{"name", "result"},
	)
	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventtriage_statcache_invalidations_total",
			Help: "Full stat cache invalidations",
		},
	)
	EventsScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventtriage_events_scored_total",
			Help: "Events scored by resulting level",
		},
		[]string{"scheme", "level"},
	)
	TriageUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventtriage_triage_updates_total",
			Help: "Administrator mutations of event triage state",
		},
		[]string{"action", "result"},
	)
	// PipelineEvents counts streamed events; result is ingested, invalid or dropped.
	PipelineEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventtriage_pipeline_events_total",
			Help: "Events handled by the streaming ingest pipeline",
		},
		[]string{"result"},
	)
	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventtriage_alerts_raised_total",
			Help: "Escalation alerts by level",
		},
		[]string{"level"},
	)
)

func init() {
	prometheus.MustRegister(StoreQueryDuration)
	prometheus.MustRegister(StoreQueryErrors)
	prometheus.MustRegister(CacheRequests)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(EventsScored)
	prometheus.MustRegister(TriageUpdates)
	prometheus.MustRegister(PipelineEvents)
	prometheus.MustRegister(AlertsRaised)
}
