package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_ingested_batches_total",
		Help: "Sensor batches processed, by flow and outcome",
	}, []string{"flow", "outcome"})
	EnrichmentCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_enrichment_calls_total",
		Help: "Places provider lookups, by outcome",
	}, []string{"outcome"})
	EnrichmentCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_enrichment_cache_hits_total",
		Help: "Places lookups answered from the cache",
	})
	EnrichmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_enrichment_latency_seconds",
		Help:    "Latency of places provider calls",
		Buckets: prometheus.DefBuckets,
	})
	TriggerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_trigger_events_total",
		Help: "Creation events handled by the enrichment trigger, by outcome",
	}, []string{"outcome"})
	TimestampsAdjusted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_timestamps_adjusted_total",
		Help: "Documents whose time field was shifted by the correction job",
	})
)

func ObserveEnrichmentLatency(start time.Time) {
	EnrichmentLatency.Observe(time.Since(start).Seconds())
}
