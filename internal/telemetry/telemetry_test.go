package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/birbparty/nestlink/internal/events"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "nestctl")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")
	t.Setenv("ENABLE_TRACING", "true")
	t.Setenv("METRICS_INTERVAL", "nope")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "nestctl", cfg.ServiceName)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.True(t, cfg.EnableTracing)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, 10, cfg.MetricsInterval)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestClientLoggerDisabled(t *testing.T) {
	l := NewClientLogger(false, nil)
	var buf bytes.Buffer
	l.Out = &buf // a disabled logger stays silent even with a writer set
	l.Debug("hidden")
	l.Error("hidden")
	assert.Zero(t, buf.Len())
}

func TestClientLoggerEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewClientLogger(true, &buf)
	l.WithField("method", "GET").Debug("Dispatching request")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Dispatching request", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "nestlink.client", line["component"])
	assert.Contains(t, line, "@timestamp")
}

func TestInjectHeaders(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	h := http.Header{}
	InjectHeaders(context.Background(), h)
	assert.Empty(t, h.Get("traceparent"), "no span means no traceparent")

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	InjectHeaders(ctx, h)
	tp1 := h.Get("traceparent")
	require.NotEmpty(t, tp1)
	assert.Contains(t, tp1, span.SpanContext().TraceID().String())

	remote := ExtractHeaders(context.Background(), h)
	got := TraceFields(remote, L().WithContext(remote))
	assert.Equal(t, span.SpanContext().TraceID().String(), got.Data["trace.id"])
}

func TestClientMetricsFollowsBus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	bus := events.NewBus(nil)
	m.Attach(bus)

	bus.Emit(events.RequestSuccess{Method: "GET", Status: 200, Duration: 10 * time.Millisecond})
	bus.Emit(events.RequestError{Method: "POST", Queued: true})
	bus.Emit(events.RequestError{Method: "GET", Status: 500, Err: errors.New("boom")})
	bus.Emit(events.QueueSuccess{})
	bus.Emit(events.QueueFailed{})
	bus.Emit(events.QueueFailed{})
	bus.Emit(events.NetworkOffline{})
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queuedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replaysTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.replaysTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.online))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMisses))

	m.Detach()
	bus.Emit(events.NetworkOnline{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.online), "detached metrics ignore events")
	assert.Zero(t, bus.Count(events.NameNetworkOnline))
}

func TestRegistryHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	m.RecordCacheHit()

	rec := httptest.NewRecorder()
	RegistryHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nestlink_client_cache_hits_total 1")
}

func TestFiberMiddlewares(t *testing.T) {
	app := fiber.New()
	app.Use(FiberMetricsMiddleware())
	app.Use(FiberLoggingMiddleware())
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	count := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/items/:id", "204"))
	assert.Equal(t, 1.0, count)
}
