package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the ingestion worker: per-root processing outcomes.
type WorkerMetrics struct {
	registry *prometheus.Registry

	rootsTotal    *prometheus.CounterVec
	rootDuration  *prometheus.HistogramVec
	rootsInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	rootsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "worker",
			Name:      "root_ingest_total",
			Help:      "Total processed root ids by status.",
		},
		[]string{"service", "status"},
	)
	rootDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "worker",
			Name:      "root_ingest_duration_seconds",
			Help:      "Root ingestion duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	rootsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "policyrag",
			Subsystem: "worker",
			Name:      "root_ingest_in_flight",
			Help:      "Number of roots currently being ingested.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	registry.MustRegister(rootsTotal, rootDuration, rootsInFlight)

	return &WorkerMetrics{
		registry:      registry,
		rootsTotal:    rootsTotal,
		rootDuration:  rootDuration,
		rootsInFlight: rootsInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRoot() {
	m.rootsInFlight.Inc()
}

func (m *WorkerMetrics) FinishRoot(service, status string, duration time.Duration) {
	m.rootsInFlight.Dec()
	if status == "" {
		status = "unknown"
	}
	m.rootsTotal.WithLabelValues(service, status).Inc()
	m.rootDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
