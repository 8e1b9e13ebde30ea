// internal/observability/metrics.go
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adaptive"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpDuration          *prometheus.HistogramVec
	answersTotal          *prometheus.CounterVec
	confidenceScore       prometheus.Histogram
	interventionsOffered  *prometheus.CounterVec
	interventionResponses *prometheus.CounterVec
	sessionsStarted       prometheus.Counter
	sessionsCompleted     *prometheus.CounterVec
	activeSessions        prometheus.Gauge
	eventPublishErrors    prometheus.Counter
}

// NewMetrics registers every collector on reg. A nil reg gets a private
// registry so tests never touch the global default.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		answersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers recorded by level and correctness.",
		}, []string{"level", "correct"}),
		confidenceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence_score",
			Help:      "Confidence scores computed after each answer.",
			Buckets:   []float64{30, 40, 65, 80, 100},
		}),
		interventionsOffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interventions_offered_total",
			Help:      "Interventions offered at checkpoints by kind.",
		}, []string{"kind"}),
		interventionResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intervention_responses_total",
			Help:      "Intervention decisions by kind and outcome.",
		}, []string{"kind", "accepted"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Practice sessions started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Practice sessions completed, split by early completion.",
		}, []string{"early"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		eventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Adaptive events that could not be published.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.answersTotal,
		m.confidenceScore,
		m.interventionsOffered,
		m.interventionResponses,
		m.sessionsStarted,
		m.sessionsCompleted,
		m.activeSessions,
		m.eventPublishErrors,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) AnswerRecorded(level int, correct bool, confidence int, scored bool) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(strconv.Itoa(level), strconv.FormatBool(correct)).Inc()
	if scored {
		m.confidenceScore.Observe(float64(confidence))
	}
}

func (m *Metrics) InterventionOffered(kind string) {
	if m == nil {
		return
	}
	m.interventionsOffered.WithLabelValues(kind).Inc()
}

func (m *Metrics) InterventionResolved(kind string, accepted bool) {
	if m == nil {
		return
	}
	m.interventionResponses.WithLabelValues(kind, strconv.FormatBool(accepted)).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionCompleted(early bool) {
	if m == nil {
		return
	}
	m.sessionsCompleted.WithLabelValues(strconv.FormatBool(early)).Inc()
	m.activeSessions.Dec()
}

func (m *Metrics) EventPublishFailed() {
	if m == nil {
		return
	}
	m.eventPublishErrors.Inc()
}
