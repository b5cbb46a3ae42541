package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vehicert",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vehicert",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vehicert",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
		[]string{"service"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vehicert",
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
		},
		[]string{"service", "method", "path"},
	)

	// AuthAttemptsTotal counts credential submissions by method and outcome.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vehicert",
			Name:      "auth_attempts_total",
			Help:      "Total authentication attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// FlowOutcomesTotal counts self-service flow submissions by flow kind
	// and classified outcome.
	FlowOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vehicert",
			Name:      "flow_outcomes_total",
			Help:      "Self-service flow submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// SessionRefreshTotal counts whoami session refreshes by result.
	SessionRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vehicert",
			Name:      "session_refresh_total",
			Help:      "Session refresh attempts by result",
		},
		[]string{"result"},
	)
)

// PrometheusMetrics returns a middleware that records request metrics
func PrometheusMetrics(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequestsInFlight.WithLabelValues(serviceName).Inc()
		defer httpRequestsInFlight.WithLabelValues(serviceName).Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(serviceName, c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(serviceName, c.Request.Method, path).Observe(elapsed)
		httpResponseSize.WithLabelValues(serviceName, c.Request.Method, path).Observe(float64(c.Writer.Size()))
	}
}

// MetricsHandler exposes the Prometheus metrics endpoint
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
