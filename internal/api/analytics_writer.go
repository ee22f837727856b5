package api

import (
	"context"
	"sync"

	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/birbparty/nestlink/sdk"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// EventSink receives analytics events from the writer's workers
type EventSink interface {
	RecordEvent(visitor string, e sdk.AnalyticsEvent)
}

// TrackRequest is one analytics event waiting to be folded into totals
type TrackRequest struct {
	Ctx     context.Context // Traced context for span propagation
	Visitor string
	Event   sdk.AnalyticsEvent
}

// AnalyticsWriterStats provides statistics about the analytics writer
type AnalyticsWriterStats struct {
	QueueDepth    int `json:"queueDepth"`
	QueueCapacity int `json:"queueCapacity"`
	WorkerCount   int `json:"workerCount"`
}

// AnalyticsWriter ingests tracked events in the background so POST
// /analytics/events can answer 202 without waiting
type AnalyticsWriter struct {
	sink    EventSink
	queue   chan TrackRequest
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAnalyticsWriter creates a writer with a worker pool
func NewAnalyticsWriter(sink EventSink, queueSize, workers int) *AnalyticsWriter {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	aw := &AnalyticsWriter{
		sink:    sink,
		queue:   make(chan TrackRequest, queueSize),
		workers: workers,
	}
	analyticsQueueCapacity.Set(float64(queueSize))
	analyticsQueueDepth.Set(0)

	aw.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go aw.worker()
	}

	return aw
}

// Write queues an event. It returns false when the queue is full and the
// event was dropped.
func (aw *AnalyticsWriter) Write(ctx context.Context, visitor string, e sdk.AnalyticsEvent) bool {
	select {
	case aw.queue <- TrackRequest{Ctx: ctx, Visitor: visitor, Event: e}:
		analyticsQueueDepth.Set(float64(len(aw.queue)))
		return true
	default:
		telemetry.WithFields(logrus.Fields{
			"portfolio_id": e.PortfolioID,
			"type":         e.Type,
		}).Warn("Analytics queue full, dropping event")
		analyticsDropped.Inc()
		return false
	}
}

// worker processes track requests from the queue
func (aw *AnalyticsWriter) worker() {
	defer aw.wg.Done()

	for req := range aw.queue {
		_, span := telemetry.StartSpan(context.WithoutCancel(req.Ctx), "analytics.record")
		span.SetAttributes(
			attribute.String("analytics.type", req.Event.Type),
			attribute.String("analytics.portfolio_id", req.Event.PortfolioID),
		)
		aw.sink.RecordEvent(req.Visitor, req.Event)
		span.End()

		analyticsQueueDepth.Set(float64(len(aw.queue)))
	}
}

// QueueDepth returns the current queue depth
func (aw *AnalyticsWriter) QueueDepth() int {
	return len(aw.queue)
}

// Stats returns current statistics
func (aw *AnalyticsWriter) Stats() AnalyticsWriterStats {
	return AnalyticsWriterStats{
		QueueDepth:    len(aw.queue),
		QueueCapacity: cap(aw.queue),
		WorkerCount:   aw.workers,
	}
}

// Shutdown stops accepting events and waits for queued ones to be recorded
func (aw *AnalyticsWriter) Shutdown() {
	aw.once.Do(func() {
		close(aw.queue)
	})
	aw.wg.Wait()
}
