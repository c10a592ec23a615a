package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	dispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_dispatch_runs_total",
			Help: "Dispatcher invocations by outcome",
		},
		[]string{"outcome"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_dispatch_run_duration_seconds",
			Help:    "Wall time of one dispatcher invocation",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
	)

	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_reminders_sent_total",
			Help: "Reminder batches dispatched by kind",
		},
		[]string{"kind"},
	)

	dispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_dispatch_errors_total",
			Help: "Per-project dispatch failures by stage",
		},
		[]string{"stage"},
	)

	claimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_claim_conflicts_total",
			Help: "Dispatch claims lost to a concurrent run",
		},
	)

	pushBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_push_batch_duration_seconds",
			Help:    "Push provider call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"key"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatchRun records one dispatcher invocation
func RecordDispatchRun(outcome string, duration time.Duration) {
	dispatchRuns.WithLabelValues(outcome).Inc()
	dispatchDuration.Observe(duration.Seconds())
}

// RecordReminderSent records a dispatched reminder batch
func RecordReminderSent(kind string) {
	remindersSent.WithLabelValues(kind).Inc()
}

// RecordDispatchError records a per-project failure at the given stage
func RecordDispatchError(stage string) {
	dispatchErrors.WithLabelValues(stage).Inc()
}

// RecordClaimConflict records a dispatch claim lost to a concurrent run
func RecordClaimConflict() {
	claimConflicts.Inc()
}

// RecordPushBatch records push provider call latency
func RecordPushBatch(provider string, duration time.Duration) {
	pushBatchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
