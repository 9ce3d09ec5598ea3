// Package middleware contains the Gin middleware shared by the dashboard API.
//
// This file instruments HTTP traffic for Prometheus. Collectors live in the
// flightdesk namespace next to the workflow counters in internal/metrics, so
// one scrape covers both the transport and the pipeline behind it. The path
// label is the registered route pattern (":id" stays ":id"), keeping
// cardinality bounded no matter what clients request.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightdesk_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// Latency omits the status label; per-status histograms triple the
	// series count for little dashboard value.
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightdesk_http_requests_inflight",
			Help: "HTTP requests currently being served.",
		},
	)

	// Buckets sized for this API: small JSON bodies for the queues and
	// detail views, up to a few MiB when pass uploads are echoed back.
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "flightdesk_http_response_size_bytes",
			Help: "HTTP response size in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 5 << 10, 25 << 10,
				100 << 10, 500 << 10, 1 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpLatency, httpInflight, httpResponseSize)
}

// Metrics returns a middleware that records request count, duration,
// in-flight gauge, and response size for every request. Unmatched routes fall
// back to the raw URL path in the path label.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpRequests.WithLabelValues(method, path, status).Inc()
		httpLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			// Size is -1 when nothing was written (204s, hijacked conns).
			httpResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
