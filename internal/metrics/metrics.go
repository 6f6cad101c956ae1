package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the KPI service.
type Metrics struct {
	// Recalculation metrics
	Recalculations     *prometheus.CounterVec
	RecalculationTime  *prometheus.HistogramVec
	RecalculationSkips *prometheus.CounterVec
	KPIWrites          *prometheus.CounterVec

	// Scan metrics
	ScanPages   *prometheus.CounterVec
	ScanRecords *prometheus.CounterVec

	// Dashboard metrics
	DashboardReads   *prometheus.CounterVec
	DashboardLatency *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		Recalculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kpi_recalculations_total",
				Help:      "KPI recalculations by scope and outcome",
			},
			[]string{"scope", "status"},
		),
		RecalculationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "kpi_recalculation_seconds",
				Help:      "KPI recalculation latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"scope"},
		),
		RecalculationSkips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kpi_recalculation_skips_total",
				Help:      "Recalculations skipped because the scope has no KPI rows",
			},
			[]string{"scope"},
		),
		KPIWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kpi_writes_total",
				Help:      "Batched KPI write calls",
			},
			[]string{"op"}, // set_actual, reset, insert
		),

		ScanPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scan_pages_total",
				Help:      "Pages fetched by the paged scanner",
			},
			[]string{"collection"},
		),
		ScanRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scan_records_total",
				Help:      "Records fetched by the paged scanner",
			},
			[]string{"collection"},
		),

		DashboardReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_reads_total",
				Help:      "Dashboard reads by view and cache result",
			},
			[]string{"view", "cache"}, // hit, miss, off
		),
		DashboardLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dashboard_latency_seconds",
				Help:      "Dashboard aggregation latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"view"},
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

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRecalculation records a finished recalculation.
func (m *Metrics) RecordRecalculation(scope string, err error, latency time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Recalculations.WithLabelValues(scope, status).Inc()
	m.RecalculationTime.WithLabelValues(scope).Observe(latency.Seconds())
}

// RecordRecalculationSkip records a scope skipped for lack of KPI rows.
func (m *Metrics) RecordRecalculationSkip(scope string) {
	m.RecalculationSkips.WithLabelValues(scope).Inc()
}

// RecordKPIWrite records one batched KPI write call.
func (m *Metrics) RecordKPIWrite(op string) {
	m.KPIWrites.WithLabelValues(op).Inc()
}

// RecordScanPage records one fetched page.
func (m *Metrics) RecordScanPage(collection string, records int) {
	m.ScanPages.WithLabelValues(collection).Inc()
	m.ScanRecords.WithLabelValues(collection).Add(float64(records))
}

// RecordDashboardRead records a dashboard read.
func (m *Metrics) RecordDashboardRead(view, cache string, latency time.Duration) {
	m.DashboardReads.WithLabelValues(view, cache).Inc()
	m.DashboardLatency.WithLabelValues(view).Observe(latency.Seconds())
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
