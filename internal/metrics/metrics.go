package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the audit service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Store metrics
	EventsScanned *prometheus.CounterVec
	ScanLatency   *prometheus.HistogramVec
	StoreErrors   *prometheus.CounterVec

	// Import metrics
	ImportRuns    *prometheus.CounterVec
	ImportedRows  prometheus.Counter
	ImportLatency prometheus.Histogram

	// Report metrics
	ReportLatency *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	InvalidRate   prometheus.Gauge
	StoredEvents  prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Geo metrics
	GeoLookupLatency *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses a fresh private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsScanned: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_scanned_total",
				Help:      "Events read from the event store",
			},
			[]string{"backend"},
		),
		ScanLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_latency_seconds",
				Help:      "Full-table scan latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"backend"},
		),
		StoreErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Event store failures by operation",
			},
			[]string{"operation"},
		),

		ImportRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_runs_total",
				Help:      "CSV import runs by outcome",
			},
			[]string{"status"},
		),
		ImportedRows: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_rows_total",
				Help:      "Rows committed by CSV imports",
			},
		),
		ImportLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_latency_seconds",
				Help:      "CSV import duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		ReportLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_latency_seconds",
				Help:      "Report build latency in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"report"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_cache_lookups_total",
				Help:      "Report cache lookups by result",
			},
			[]string{"result"},
		),
		InvalidRate: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "invalid_traffic_percent",
				Help:      "Share of invalid events in the last full report",
			},
		),
		StoredEvents: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_events",
				Help:      "Events in the store at the last report",
			},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		GeoLookupLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geo_lookup_latency_seconds",
				Help:      "ASN lookup latency",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01},
			},
			[]string{"cache_hit"},
		),

		gatherer: reg,
	}
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordScan records a full-table scan.
func (m *Metrics) RecordScan(backend string, events int, latency time.Duration) {
	if m == nil {
		return
	}
	m.EventsScanned.WithLabelValues(backend).Add(float64(events))
	m.ScanLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordStoreError records a failed store operation.
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// RecordImport records an import run.
func (m *Metrics) RecordImport(success bool, rows int64, latency time.Duration) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "committed"
		m.ImportedRows.Add(float64(rows))
	}
	m.ImportRuns.WithLabelValues(status).Inc()
	m.ImportLatency.Observe(latency.Seconds())
}

// RecordReport records a report build.
func (m *Metrics) RecordReport(report string, latency time.Duration) {
	if m == nil {
		return
	}
	m.ReportLatency.WithLabelValues(report).Observe(latency.Seconds())
}

// RecordCacheLookup records a report cache lookup.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// UpdateTrafficStats updates the headline gauges.
func (m *Metrics) UpdateTrafficStats(total int64, invalidPct float64) {
	if m == nil {
		return
	}
	m.StoredEvents.Set(float64(total))
	m.InvalidRate.Set(invalidPct)
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, path).Observe(latency.Seconds())
}

// RecordGeoLookup records an ASN lookup.
func (m *Metrics) RecordGeoLookup(cacheHit bool, latency time.Duration) {
	if m == nil {
		return
	}
	hit := "false"
	if cacheHit {
		hit = "true"
	}
	m.GeoLookupLatency.WithLabelValues(hit).Observe(latency.Seconds())
}
