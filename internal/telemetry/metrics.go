package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/birbparty/nestlink/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const namespace = "nestlink"

// ClientMetrics records Prometheus metrics for one sdk client. It listens on
// the client's event bus and is also the cache hit recorder.
type ClientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	queuedTotal     prometheus.Counter
	replaysTotal    *prometheus.CounterVec
	online          prometheus.Gauge

	mu   sync.Mutex
	bus  *events.Bus
	subs map[events.Name]events.Subscription
}

// NewClientMetrics registers the client metrics with reg. Each client needs
// its own registerer; registering twice with the same one panics.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)

	m := &ClientMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_requests_total",
			Help:      "Total number of dispatched requests by outcome",
		}, []string{"method", "outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_request_duration_seconds",
			Help:      "Duration of dispatched requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_cache_hits_total",
			Help:      "Total number of GET responses served from cache",
		}),

		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_cache_misses_total",
			Help:      "Total number of cache lookups that missed",
		}),

		queuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_queued_requests_total",
			Help:      "Total number of requests deferred to the offline queue",
		}),

		replaysTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_queue_replays_total",
			Help:      "Total number of queued requests resolved by result",
		}, []string{"result"}),

		online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_online",
			Help:      "Whether the client believes it is online (1) or offline (0)",
		}),
	}
	m.online.Set(1)
	return m
}

// Attach subscribes the metrics to bus. Calling it again moves the
// subscriptions to the new bus.
func (m *ClientMetrics) Attach(bus *events.Bus) {
	m.Detach()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
	m.subs = map[events.Name]events.Subscription{
		events.NameRequestSuccess: events.Subscribe(bus, func(e events.RequestSuccess) {
			m.requestsTotal.WithLabelValues(e.Method, "success").Inc()
			m.requestDuration.WithLabelValues(e.Method, strconv.Itoa(e.Status)).Observe(e.Duration.Seconds())
		}),
		events.NameRequestError: events.Subscribe(bus, func(e events.RequestError) {
			outcome := "error"
			if e.Queued {
				outcome = "queued"
				m.queuedTotal.Inc()
			}
			m.requestsTotal.WithLabelValues(e.Method, outcome).Inc()
			if !e.Queued {
				m.requestDuration.WithLabelValues(e.Method, strconv.Itoa(e.Status)).Observe(e.Duration.Seconds())
			}
		}),
		events.NameQueueSuccess: events.Subscribe(bus, func(events.QueueSuccess) {
			m.replaysTotal.WithLabelValues("success").Inc()
		}),
		events.NameQueueFailed: events.Subscribe(bus, func(events.QueueFailed) {
			m.replaysTotal.WithLabelValues("failed").Inc()
		}),
		events.NameNetworkOnline: events.Subscribe(bus, func(events.NetworkOnline) {
			m.online.Set(1)
		}),
		events.NameNetworkOffline: events.Subscribe(bus, func(events.NetworkOffline) {
			m.online.Set(0)
		}),
	}
}

// Detach removes the bus subscriptions
func (m *ClientMetrics) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bus == nil {
		return
	}
	for name, sub := range m.subs {
		m.bus.Off(name, sub)
	}
	m.bus = nil
	m.subs = nil
}

// RecordCacheHit implements cache.HitRecorder
func (m *ClientMetrics) RecordCacheHit() {
	m.cacheHits.Inc()
}

// RecordCacheMiss implements cache.HitRecorder
func (m *ClientMetrics) RecordCacheMiss() {
	m.cacheMisses.Inc()
}

var (
	serverMetricsOnce   sync.Once
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	serviceUp           prometheus.Gauge
)

func initServerMetrics() {
	serverMetricsOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"})

		httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"})

		serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "service_up",
			Help: "Whether the service is up (1) or down (0)",
		})
	})
}

// RecordHTTPRequest records a request served by the development backend
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	initServerMetrics()
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetServiceUp flips the service_up gauge
func SetServiceUp(up bool) {
	initServerMetrics()
	if up {
		serviceUp.Set(1)
	} else {
		serviceUp.Set(0)
	}
}

// InitMetrics installs an OTLP meter provider when metrics export is enabled
func InitMetrics(ctx context.Context, cfg *Config) error {
	initServerMetrics()
	if !cfg.EnableMetrics {
		return nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	interval := time.Duration(cfg.MetricsInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)
	return nil
}

// CloseMetrics flushes and stops the meter provider
func CloseMetrics(ctx context.Context) error {
	if mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}
	return nil
}
