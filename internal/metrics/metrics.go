// Package metrics exposes Prometheus instrumentation for the HTTP API, report generation and
// dataset loading.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Diagram annotation outcomes.
const (
	DiagramAnnotated   = "annotated"
	DiagramUnavailable = "unavailable"
	DiagramMalformed   = "malformed"
)

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	ErrorTotal      *prometheus.CounterVec

	// Report metrics
	ReportsBuilt    prometheus.Counter
	ReportCacheHits *prometheus.CounterVec
	ReportCacheSize prometheus.Gauge
	DiagramOutcomes *prometheus.CounterVec
	RecoloredShapes prometheus.Histogram

	// Dataset metrics
	RecordsLoaded       *prometheus.GaugeVec
	DatasetLoadDuration prometheus.Histogram
}

// New creates and registers all application metrics under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path", "status"}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		ErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "path", "status"}),
		ReportsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_built_total",
			Help:      "Total number of patient reports computed",
		}),
		ReportCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_hits_total",
			Help:      "Total number of patient reports served from cache by tier",
		}, []string{"tier"}),
		ReportCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_cache_entries",
			Help:      "Current number of cached patient reports",
		}),
		DiagramOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagram_annotations_total",
			Help:      "Anatomy diagram annotations by outcome",
		}, []string{"outcome"}),
		RecoloredShapes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diagram_recolored_shapes",
			Help:      "Number of shapes recolored per annotated diagram",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
		RecordsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_loaded",
			Help:      "Number of records loaded per dataset",
		}, []string{"dataset"}),
		DatasetLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_load_duration_seconds",
			Help:      "Time spent loading and normalizing all datasets",
		}),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.RequestTotal,
		m.ErrorTotal,
		m.ReportsBuilt,
		m.ReportCacheHits,
		m.ReportCacheSize,
		m.DiagramOutcomes,
		m.RecoloredShapes,
		m.RecordsLoaded,
		m.DatasetLoadDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
