package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	RecordsTotal  *prometheus.CounterVec
	PagesTotal    *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg, or on the default registry
// when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_attempts_total",
			Help: "Fetch attempts by strategy and outcome",
		}, []string{"method", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Duration of a single fetch attempt",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"method"}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_records_total",
			Help: "Product records by site and admission result",
		}, []string{"site", "result"}), // e.g., 'emitted', 'duplicate', 'limit', 'filtered'
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Listing pages fetched per site",
		}, []string{"site"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g., 'fetch_failed', 'sink_write_failed'
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_ops_http_requests_total",
			Help: "Requests served by the ops server",
		}, []string{"method", "path", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_ops_http_request_duration_seconds",
			Help:    "Duration of ops server requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) ObserveFetch(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(method, outcome).Inc()
	m.FetchDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) IncRecords(site, result string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(site, result).Inc()
}

func (m *Metrics) IncPages(site string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(site).Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
