package chunkspan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	QueriesTotal        *prometheus.CounterVec
	QueryLatency        prometheus.Histogram
	DedupCancelled      prometheus.Counter
	DedupDamped         prometheus.Counter
	DedupDegraded       prometheus.Counter
	ArtifactCacheHits   prometheus.Counter
	ArtifactCacheMisses prometheus.Counter
	ArtifactBuilds      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkspan_queries_total",
				Help: "Queries by outcome (ok, excessive_work, configuration, corruption).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chunkspan_query_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		DedupCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunkspan_dedup_cancelled_total",
				Help: "Span hits cancelled as overlapping duplicates.",
			},
		),
		DedupDamped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunkspan_dedup_damped_total",
				Help: "Span hits whose score was damped by a nearby winner.",
			},
		),
		DedupDegraded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunkspan_dedup_degraded_total",
				Help: "Dedup windows that hit the live-hit cap and degraded.",
			},
		),
		ArtifactCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunkspan_artifact_cache_hits_total",
				Help: "Per-generation artifact cache hits.",
			},
		),
		ArtifactCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunkspan_artifact_cache_misses_total",
				Help: "Per-generation artifact cache misses.",
			},
		),
		ArtifactBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkspan_artifact_builds_total",
				Help: "Artifacts built by kind (docnummap, groups, sort, boost).",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.QueriesTotal,
			m.QueryLatency,
			m.DedupCancelled,
			m.DedupDamped,
			m.DedupDegraded,
			m.ArtifactCacheHits,
			m.ArtifactCacheMisses,
			m.ArtifactBuilds,
		)
	}
	return m
}

func (m *Metrics) observeQuery(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) observeDedup(stats DedupStats) {
	if m == nil {
		return
	}
	m.DedupCancelled.Add(float64(stats.Cancelled))
	m.DedupDamped.Add(float64(stats.Damped))
	m.DedupDegraded.Add(float64(stats.Degraded))
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ArtifactCacheHits.Inc()
	} else {
		m.ArtifactCacheMisses.Inc()
	}
}

func (m *Metrics) artifactBuilt(kind string) {
	if m == nil {
		return
	}
	m.ArtifactBuilds.WithLabelValues(kind).Inc()
}
