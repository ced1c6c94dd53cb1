// Package metrics provides Prometheus metrics for ticket triage.
//
// RED pattern for classification:
//   - Rate:     cache_decisions_total, provider_attempts_total, tickets_total
//   - Errors:   the "failed" status and the non-success provider outcomes
//   - Duration: classify_duration_seconds
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultNamespace = "triage"

type Metrics struct {
	// CacheDecisions counts semantic cache lookups. result: hit | miss
	CacheDecisions *prometheus.CounterVec

	// NearestDistance is the cosine distance of the nearest memory record per lookup.
	NearestDistance prometheus.Histogram

	// ProviderAttempts counts individual model calls.
	// outcome: success | transient | rate_limited | malformed | error
	ProviderAttempts *prometheus.CounterVec

	// Tickets counts tickets reaching a terminal status.
	Tickets *prometheus.CounterVec

	// Corrections counts applied human feedback.
	Corrections prometheus.Counter

	// ClassifyDuration tracks end-to-end classification latency by path.
	// path: cache | ai | failed
	ClassifyDuration *prometheus.HistogramVec

	// EmbedCache counts embedding cache lookups. result: hit | miss
	EmbedCache *prometheus.CounterVec
}

// New registers the triage metrics on reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)
	return &Metrics{
		CacheDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "decisions_total",
				Help:      "Semantic cache lookups by result.",
			},
			[]string{"result"},
		),
		NearestDistance: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "nearest_distance",
				Help:      "Cosine distance to the nearest memory record.",
				// 0.05 → 0.1 → ... → 2.0
				Buckets: prometheus.LinearBuckets(0.05, 0.05, 40),
			},
		),
		ProviderAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempts_total",
				Help:      "Classification provider calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		Tickets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tickets_total",
				Help:      "Tickets reaching a terminal status.",
			},
			[]string{"status"},
		),
		Corrections: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "corrections_total",
				Help:      "Human corrections applied to memory.",
			},
		),
		ClassifyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "classify_duration_seconds",
				Help:      "Duration of ticket classification in seconds.",
				// 5ms → 10ms → ... → ~41s
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"path"},
		),
		EmbedCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "cache_total",
				Help:      "Embedding cache lookups by result.",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) CacheDecision(hit bool, nearest float64, hasNeighbor bool) {
	if m == nil {
		return
	}
	if hasNeighbor {
		m.NearestDistance.Observe(nearest)
	}
	m.CacheDecisions.WithLabelValues(hitLabel(hit)).Inc()
}

func (m *Metrics) ProviderAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) TicketFinished(status, path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Tickets.WithLabelValues(status).Inc()
	m.ClassifyDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *Metrics) Correction() {
	if m == nil {
		return
	}
	m.Corrections.Inc()
}

func (m *Metrics) EmbedCacheLookup(hit bool) {
	if m == nil {
		return
	}
	m.EmbedCache.WithLabelValues(hitLabel(hit)).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
