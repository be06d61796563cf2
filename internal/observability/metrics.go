// Package observability exposes the Prometheus metrics for the buoy pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swellwatch"

// Metrics holds the Prometheus counters and histograms for fetching,
// parsing, caching, and aggregating buoy data.
type Metrics struct {
	FetchRequests *prometheus.CounterVec   // labels: feed={buoy,coastal-wind}, outcome={success,timeout,http_error,empty,network}
	FetchDuration *prometheus.HistogramVec // labels: feed
	SkippedRows   *prometheus.CounterVec   // labels: feed
	CacheLookups  *prometheus.CounterVec   // labels: kind={latest,history,coastal-wind}, result={hit,miss}
	StationErrors *prometheus.CounterVec   // labels: kind={fetch,parse,no_data}
	WindSource    *prometheus.CounterVec   // labels: source={native,fallback,unavailable}
	BreakerStates *prometheus.CounterVec   // labels: feed, state={closed,half-open,open}

	AggregateDuration prometheus.Histogram
	RefreshRuns       *prometheus.CounterVec // labels: trigger={schedule,pubsub}
	CacheEntries      prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics and registers them with reg. A nil reg skips registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream feed requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"feed"}),
		SkippedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_skipped_rows_total",
			Help:      "Malformed feed rows dropped by the parser.",
		}, []string{"feed"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by dataset kind and result.",
		}, []string{"kind", "result"}),
		StationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_errors_total",
			Help:      "Per-station failures surfaced to clients, by error kind.",
		}, []string{"kind"}),
		WindSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wind_resolutions_total",
			Help:      "Wind resolutions by source.",
		}, []string{"source"}),
		BreakerStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Feed circuit breaker transitions by feed and new state.",
		}, []string{"feed", "state"}),
		AggregateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of an all-stations status request.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20},
		}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Cache warm-up runs by trigger.",
		}, []string{"trigger"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held in the response cache.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FetchRequests,
			m.FetchDuration,
			m.SkippedRows,
			m.CacheLookups,
			m.StationErrors,
			m.WindSource,
			m.BreakerStates,
			m.AggregateDuration,
			m.RefreshRuns,
			m.CacheEntries,
		)
	}

	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// The helpers below accept a nil receiver so callers may run without metrics.

// ObserveFetch records one upstream request.
func (m *Metrics) ObserveFetch(feed, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(feed, outcome).Inc()
	m.FetchDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
}

// AddSkippedRows records malformed rows dropped while parsing a feed.
func (m *Metrics) AddSkippedRows(feed string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedRows.WithLabelValues(feed).Add(float64(n))
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// StationError records a per-station failure.
func (m *Metrics) StationError(kind string) {
	if m == nil {
		return
	}
	m.StationErrors.WithLabelValues(kind).Inc()
}

// WindResolved records where a station's wind reading came from.
func (m *Metrics) WindResolved(source string) {
	if m == nil {
		return
	}
	m.WindSource.WithLabelValues(source).Inc()
}

// BreakerTransition records a feed circuit breaker moving to state.
func (m *Metrics) BreakerTransition(feed, state string) {
	if m == nil {
		return
	}
	m.BreakerStates.WithLabelValues(feed, state).Inc()
}

// ObserveAggregate records the duration of an all-stations request.
func (m *Metrics) ObserveAggregate(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AggregateDuration.Observe(elapsed.Seconds())
}

// RefreshRun records a cache warm-up run.
func (m *Metrics) RefreshRun(trigger string) {
	if m == nil {
		return
	}
	m.RefreshRuns.WithLabelValues(trigger).Inc()
}

// SetCacheEntries updates the cache size gauge.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}
