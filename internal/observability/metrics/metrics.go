// Package metrics exposes prometheus instruments for the HTTP surface and the
// scheduled sweep.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

type SweepMetrics struct {
	runs        prometheus.Counter
	reminders   prometheus.Counter
	suspensions prometheus.Counter
	expired     prometheus.Counter
	errors      prometheus.Counter
	duration    prometheus.Histogram
}

func NewSweepMetrics() *SweepMetrics {
	return &SweepMetrics{
		runs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_runs_total",
			Help: "Scheduled sweep executions.",
		}),
		reminders: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_reminders_total",
			Help: "Trial reminder emails sent by the sweep.",
		}),
		suspensions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_suspensions_total",
			Help: "Communities suspended by the sweep.",
		}),
		expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_expired_records_total",
			Help: "Stale subscription records expired by the sweep.",
		}),
		errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_errors_total",
			Help: "Errors encountered during sweep runs.",
		}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_sweep_duration_seconds",
			Help:    "Wall time of a full sweep run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *SweepMetrics) ObserveRun(d time.Duration, reminders, suspensions, expired, errs int) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.reminders.Add(float64(reminders))
	m.suspensions.Add(float64(suspensions))
	m.expired.Add(float64(expired))
	m.errors.Add(float64(errs))
	m.duration.Observe(d.Seconds())
}
