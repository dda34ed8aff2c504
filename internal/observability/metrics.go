package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	transitionsTotal      *prometheus.CounterVec
	autoSubmittedTotal    prometheus.Counter
	sweepDurationSeconds  prometheus.Histogram
	sweepFinalizedTotal   prometheus.Counter
	timerStreamsActive    prometheus.Gauge
	submissionEventsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_transitions_total",
			Help: "Submission status transitions by origin, target and trigger.",
		}, []string{"from", "to", "trigger"})

		autoSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submission_auto_submitted_total",
			Help: "Submissions force-closed at their closing instant.",
		})

		sweepDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deadline_sweep_duration_seconds",
			Help:    "Duration of deadline sweep passes.",
			Buckets: prometheus.DefBuckets,
		})

		sweepFinalizedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deadline_sweep_finalized_total",
			Help: "Submissions finalized by the periodic sweep.",
		})

		timerStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "submission_timer_streams_active",
			Help: "Open websocket timer streams.",
		})

		submissionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_events_total",
			Help: "Submission lifecycle events by origin.",
		}, []string{"source"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			transitionsTotal,
			autoSubmittedTotal,
			sweepDurationSeconds,
			sweepFinalizedTotal,
			timerStreamsActive,
			submissionEventsTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SubmissionTransitions exposes the status transition counter.
func SubmissionTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// AutoSubmitted exposes the forced submission counter.
func AutoSubmitted() prometheus.Counter {
	RegisterMetrics()
	return autoSubmittedTotal
}

// SweepDuration exposes the sweep duration histogram.
func SweepDuration() prometheus.Histogram {
	RegisterMetrics()
	return sweepDurationSeconds
}

// SweepFinalized exposes the counter of sweep-finalized submissions.
func SweepFinalized() prometheus.Counter {
	RegisterMetrics()
	return sweepFinalizedTotal
}

// TimerStreamsActive exposes the gauge of open timer streams.
func TimerStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return timerStreamsActive
}

// SubmissionEvents exposes the lifecycle event counter.
func SubmissionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionEventsTotal
}

// MetricsHandler serves the default registry, which holds the collectors above.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
