package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the insights engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec

	// Fetch metrics
	FetchPages    *prometheus.CounterVec
	FetchItems    *prometheus.GaugeVec
	FetchDrift    *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	UnknownStatus *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Event source metrics
	EventQueries *prometheus.CounterVec

	// Report metrics
	ReportLatency *prometheus.HistogramVec
	ReportErrors  *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Page requests sent to the commerce backend",
			},
			[]string{"collection", "status"},
		),
		UpstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_seconds",
				Help:      "Commerce backend page request latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"collection"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Retried commerce backend page requests",
			},
			[]string{"collection"},
		),
		FetchPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_pages_total",
				Help:      "Pages consumed by full-collection fetches",
			},
			[]string{"collection"},
		),
		FetchItems: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fetch_items",
				Help:      "Items returned by the last full-collection fetch",
			},
			[]string{"collection"},
		),
		FetchDrift: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_count_drift_total",
				Help:      "Fetches whose reported total changed between pages",
			},
			[]string{"collection"},
		),
		UnknownStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unknown_status_records_total",
				Help:      "Records carrying a status outside the known set",
			},
			[]string{"collection", "field"},
		),
		FetchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_failures_total",
				Help:      "Aborted full-collection fetches",
			},
			[]string{"collection", "kind"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups",
			},
			[]string{"collection", "result"}, // hit, miss, error
		),
		EventQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_queries_total",
				Help:      "Queries against event-count collaborators",
			},
			[]string{"source", "status"},
		),
		ReportLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_seconds",
				Help:      "Report build latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"report"},
		),
		ReportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_errors_total",
				Help:      "Reports that failed to build",
			},
			[]string{"report"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics handler for a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordUpstreamRequest records one page request and its outcome.
func (m *Metrics) RecordUpstreamRequest(collection string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(collection, label).Inc()
	m.UpstreamLatency.WithLabelValues(collection).Observe(latency.Seconds())
}

// RecordRetry records a retried page request.
func (m *Metrics) RecordRetry(collection string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(collection).Inc()
}

// RecordPage records a consumed page.
func (m *Metrics) RecordPage(collection string) {
	if m == nil {
		return
	}
	m.FetchPages.WithLabelValues(collection).Inc()
}

// RecordFetch records a completed fetch.
func (m *Metrics) RecordFetch(collection string, items int, drifted bool) {
	if m == nil {
		return
	}
	m.FetchItems.WithLabelValues(collection).Set(float64(items))
	if drifted {
		m.FetchDrift.WithLabelValues(collection).Inc()
	}
}

// RecordUnknownStatus counts records whose field holds an unrecognized status.
func (m *Metrics) RecordUnknownStatus(collection, field string) {
	if m == nil {
		return
	}
	m.UnknownStatus.WithLabelValues(collection, field).Inc()
}

// RecordFetchFailure records an aborted fetch.
func (m *Metrics) RecordFetchFailure(collection, kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(collection, kind).Inc()
}

// RecordCacheLookup records a result cache lookup.
func (m *Metrics) RecordCacheLookup(collection, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(collection, result).Inc()
}

// RecordEventQuery records a query against an event-count source.
func (m *Metrics) RecordEventQuery(source string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventQueries.WithLabelValues(source, status).Inc()
}

// RecordReport records a report build.
func (m *Metrics) RecordReport(report string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.ReportLatency.WithLabelValues(report).Observe(latency.Seconds())
	if err != nil {
		m.ReportErrors.WithLabelValues(report).Inc()
	}
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
