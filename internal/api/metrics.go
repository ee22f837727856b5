package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nestlink_api_request_duration_seconds",
		Help:    "Request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "endpoint", "status", "platform"})

	// Resource mutations
	resourceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestlink_api_resource_operations_total",
		Help: "Total number of resource operations",
	}, []string{"resource", "operation", "result"})

	// Auth outcomes
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestlink_api_auth_attempts_total",
		Help: "Total number of login, register and refresh attempts",
	}, []string{"operation", "result"})

	// Upload volume
	uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestlink_api_upload_bytes_total",
		Help: "Total bytes accepted through file uploads",
	})

	// Analytics ingestion
	analyticsQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestlink_api_analytics_queue_depth",
		Help: "Current depth of the analytics ingestion queue",
	})

	analyticsQueueCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestlink_api_analytics_queue_capacity",
		Help: "Total capacity of the analytics ingestion queue",
	})

	// Token housekeeping
	sweptTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestlink_api_swept_tokens_total",
		Help: "Total number of expired tokens purged by the sweeper",
	})

	analyticsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestlink_api_analytics_dropped_total",
		Help: "Total number of analytics events dropped because the queue was full",
	})
)

// PrometheusMetricsMiddleware tracks request metrics for Prometheus
func PrometheusMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		endpoint := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			endpoint = r.Path
		}

		requestDuration.WithLabelValues(
			c.Method(),
			endpoint,
			strconv.Itoa(c.Response().StatusCode()),
			c.Get("X-Platform", "unknown"),
		).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordResourceOperation records a create, update or delete
func RecordResourceOperation(resource, operation string, err error) {
	resourceOperations.WithLabelValues(resource, operation, result(err)).Inc()
}

// RecordAuthAttempt records a login, register or refresh outcome
func RecordAuthAttempt(operation string, err error) {
	authAttempts.WithLabelValues(operation, result(err)).Inc()
}

// RecordUpload adds an accepted upload's size
func RecordUpload(size int64) {
	uploadBytes.Add(float64(size))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
