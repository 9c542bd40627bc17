// Package telemetry exposes Prometheus metrics for the job pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapeflow_jobs_submitted_total",
			Help: "Total number of scrape jobs accepted for processing.",
		},
	)

	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeflow_jobs_finished_total",
			Help: "Total number of scrape jobs reaching a terminal state, labeled by status.",
		},
		[]string{"status"},
	)

	jobDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrapeflow_job_duration_seconds",
			Help:    "Histogram of scrape execution time from pickup to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeflow_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts, labeled by result.",
		},
		[]string{"result"},
	)

	rateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapeflow_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the fixed-window rate limiter.",
		},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapeflow_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeflow_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
)

// ObserveJobSubmitted counts an accepted submission.
func ObserveJobSubmitted() {
	jobsSubmittedTotal.Inc()
}

// ObserveJobFinished records a terminal transition and its execution time.
func ObserveJobFinished(status string, d time.Duration) {
	jobsFinishedTotal.WithLabelValues(status).Inc()
	jobDurationSeconds.Observe(d.Seconds())
}

// ObserveWebhookDelivery records one delivery attempt outcome.
func ObserveWebhookDelivery(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	webhookDeliveriesTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitRejection counts a 429 issued by the limiter.
func ObserveRateLimitRejection() {
	rateLimitRejectionsTotal.Inc()
}

// ObserveHTTPRequest records latency and count for a served request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
