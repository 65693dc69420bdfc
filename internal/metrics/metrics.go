// Package metrics exposes Prometheus collectors for the reference evaluation service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	evaluationsTotal           *prometheus.CounterVec
	activeEvaluations          prometheus.Gauge
	agentDurationSeconds       *prometheus.HistogramVec
	queueRejectionsTotal       prometheus.Counter
	queueDepth                 prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		evaluationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shoplab_evaluations_total",
				Help: "Total number of evaluations finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		activeEvaluations = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shoplab_active_evaluations",
				Help: "Number of evaluations currently being analyzed.",
			},
		)

		agentDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shoplab_agent_duration_seconds",
				Help:    "Histogram of per-agent analysis durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"agent"},
		)

		queueRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shoplab_queue_rejections_total",
				Help: "Submissions rejected because the evaluation queue was full.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shoplab_queue_depth",
				Help: "Evaluations waiting for a worker.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEvaluation counts a finished evaluation by terminal status.
func ObserveEvaluation(status string) {
	Init()
	evaluationsTotal.WithLabelValues(status).Inc()
}

// IncActiveEvaluations increments the active evaluations gauge.
func IncActiveEvaluations() {
	Init()
	activeEvaluations.Inc()
}

// DecActiveEvaluations decrements the active evaluations gauge.
func DecActiveEvaluations() {
	Init()
	activeEvaluations.Dec()
}

// ObserveAgent records how long one agent took.
func ObserveAgent(agent string, duration time.Duration) {
	Init()
	agentDurationSeconds.WithLabelValues(agent).Observe(duration.Seconds())
}

// ObserveQueueRejection counts a submission turned away by a full queue.
func ObserveQueueRejection() {
	Init()
	queueRejectionsTotal.Inc()
}

// SetQueueDepth records how many evaluations are waiting for a worker.
func SetQueueDepth(n int) {
	Init()
	queueDepth.Set(float64(n))
}
