package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Init initializes process telemetry: logger, metrics and tracing
func Init(ctx context.Context, cfg *Config) error {
	InitLogger(cfg)

	if err := InitMetrics(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := InitTracing(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	L().WithFields(logrus.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
		"tracing":     cfg.EnableTracing,
		"metrics":     cfg.EnableMetrics,
	}).Info("Telemetry initialized")

	return nil
}

// Shutdown flushes and stops tracing and metrics export
func Shutdown(ctx context.Context) error {
	return errors.Join(CloseTracing(ctx), CloseMetrics(ctx))
}

// PrometheusHandler returns an HTTP handler for the default registry
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RegistryHandler returns an HTTP handler serving metrics from g
func RegistryHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// FiberMetricsMiddleware returns a Fiber middleware for recording HTTP metrics
func FiberMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Continue the caller's trace when it sent traceparent
		header := make(http.Header)
		if tp := c.Get("traceparent"); tp != "" {
			header.Set("traceparent", tp)
		}
		parent := ExtractHeaders(c.UserContext(), header)

		ctx, span := StartSpan(parent, fmt.Sprintf("%s %s", c.Method(), c.Path()),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		RecordHTTPRequest(c.Method(), routePath(c), fmt.Sprintf("%d", status), time.Since(start))

		span.SetAttributes(
			semconv.HTTPMethodKey.String(c.Method()),
			semconv.HTTPTargetKey.String(c.Path()),
			semconv.HTTPStatusCodeKey.Int(status),
		)

		if err != nil {
			RecordError(ctx, err)
			SetErrorStatus(ctx, err.Error())
		} else if status >= 400 {
			SetErrorStatus(ctx, fmt.Sprintf("HTTP %d", status))
		} else {
			SetOKStatus(ctx)
		}

		return err
	}
}

// FiberLoggingMiddleware returns a Fiber middleware for structured logging
func FiberLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		entry := WithContext(c.UserContext()).WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).Milliseconds(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
			"request_id": c.GetRespHeader("X-Request-ID"),
			"platform":   c.Get("X-Platform"),
		})

		if err != nil {
			entry.WithError(err).Error("Request failed")
		} else if c.Response().StatusCode() >= 400 {
			entry.Warn("Request completed with error status")
		} else {
			entry.Info("Request completed")
		}

		return err
	}
}

// routePath returns the matched route pattern so IDs do not explode label
// cardinality
func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}
