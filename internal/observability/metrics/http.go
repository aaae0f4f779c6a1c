package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics covers the api service: generic HTTP traffic plus the
// query pipeline observations that matter for retrieval quality.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	queryCitations  *prometheus.HistogramVec
	queryConfidence *prometheus.HistogramVec
	noEvidenceTotal *prometheus.CounterVec
	synthesisBranch *prometheus.CounterVec
	messagesTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "policyrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total answered queries by outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	queryCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "query",
			Name:      "citations",
			Help:      "Distribution of citations per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	queryConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Distribution of heuristic answer confidence.",
			Buckets:   []float64{0, 0.1, 0.3, 0.5, 0.7, 0.8, 0.9, 0.95},
		},
		[]string{"service", "endpoint"},
	)
	noEvidenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "query",
			Name:      "no_evidence_total",
			Help:      "Total queries answered without any retrieved evidence.",
		},
		[]string{"service", "endpoint"},
	)
	synthesisBranch := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "query",
			Name:      "synthesis_branch_total",
			Help:      "Total queries by synthesis branch (comprehensive vs chunks-only).",
		},
		[]string{"service", "branch"},
	)
	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Total conversation messages by routed intent.",
		},
		[]string{"service", "intent"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryDuration,
		queryCitations,
		queryConfidence,
		noEvidenceTotal,
		synthesisBranch,
		messagesTotal,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		queriesTotal:    queriesTotal,
		queryDuration:   queryDuration,
		queryCitations:  queryCitations,
		queryConfidence: queryConfidence,
		noEvidenceTotal: noEvidenceTotal,
		synthesisBranch: synthesisBranch,
		messagesTotal:   messagesTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordQuery observes one finished pipeline run. Outcome is "answered",
// "no_evidence" or "error"; the error outcome still counts as a served
// response because the pipeline never fails outward.
func (m *HTTPServerMetrics) RecordQuery(service, endpoint, outcome string, citations int, confidence float64, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.queriesTotal.WithLabelValues(service, endpoint, outcome).Inc()
	m.queryDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	m.queryCitations.WithLabelValues(service, endpoint).Observe(float64(citations))
	m.queryConfidence.WithLabelValues(service, endpoint).Observe(confidence)
	if outcome == "no_evidence" {
		m.noEvidenceTotal.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordSynthesisBranch(service, branch string) {
	if branch == "" {
		branch = "unknown"
	}
	m.synthesisBranch.WithLabelValues(service, branch).Inc()
}

func (m *HTTPServerMetrics) RecordConversationMessage(service, intent string) {
	if intent == "" {
		intent = "unknown"
	}
	m.messagesTotal.WithLabelValues(service, intent).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
