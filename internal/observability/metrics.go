package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline, retention sweeper, and routing adapter.
type Metrics struct {
	UplinksReceived  prometheus.Counter
	UplinksAccepted  prometheus.Counter
	UplinksThrottled prometheus.Counter
	UplinksRejected  *prometheus.CounterVec // labels: reason={unauthorized,validation,internal}
	AlertsCreated    prometheus.Counter
	NotifyFailures   prometheus.Counter
	IngestDuration   prometheus.Histogram

	// Retention sweeper metrics.
	SweepDeleted  *prometheus.CounterVec // labels: collection={readings,alerts}
	SweepFailures *prometheus.CounterVec // labels: collection={readings,alerts}

	// Routing/geocoding adapter metrics.
	RoutingRequests    *prometheus.CounterVec   // labels: operation={directions,geocode}, outcome={success,error,empty}
	RoutingAPIDuration *prometheus.HistogramVec // labels: operation={directions,geocode}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UplinksReceived,
		m.UplinksAccepted,
		m.UplinksThrottled,
		m.UplinksRejected,
		m.AlertsCreated,
		m.NotifyFailures,
		m.IngestDuration,
		m.SweepDeleted,
		m.SweepFailures,
		m.RoutingRequests,
		m.RoutingAPIDuration,
		m.GeocodeCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UplinksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "uplinks_received_total",
			Help:      "Total webhook uplinks received, before any gating.",
		}),
		UplinksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "uplinks_accepted_total",
			Help:      "Total uplinks that passed all gates and were persisted.",
		}),
		UplinksThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "uplinks_throttled_total",
			Help:      "Total uplinks short-circuited by the per-device throttle.",
		}),
		UplinksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "uplinks_rejected_total",
			Help:      "Total rejected uplinks by reason.",
		}, []string{"reason"}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "alerts_created_total",
			Help:      "Total alert events created on status transitions.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "notify_failures_total",
			Help:      "Total swallowed push notification dispatch failures.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flood_watch",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete uplink ingestion.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "sweep_deleted_total",
			Help:      "Total expired records deleted by the retention sweeper.",
		}, []string{"collection"}),
		SweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "sweep_failures_total",
			Help:      "Total sweep batches aborted by a store error.",
		}, []string{"collection"}),
		RoutingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "routing_requests_total",
			Help:      "Routing/geocoding API requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		RoutingAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flood_watch",
			Name:      "routing_api_duration_seconds",
			Help:      "Routing/geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_watch",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
	}
}
