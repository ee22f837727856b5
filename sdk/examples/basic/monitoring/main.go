// Monitoring Example
// This example exposes client metrics for Prometheus and logs every request
// lifecycle event.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/birbparty/nestlink/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	registry := prometheus.NewRegistry()

	client := sdk.NewClient(sdk.Overrides{
		BaseURL:       sdk.String(getEnv("NESTLINK_BASE_URL", "http://localhost:8080/api")),
		EnableLogging: sdk.Bool(true),
	}, sdk.WithMetrics(registry))
	defer client.Close()

	// Example 1: Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		log.Printf("📊 Metrics on http://localhost:9091/metrics")
		if err := http.ListenAndServe(":9091", mux); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	// Example 2: Event hooks
	client.On(sdk.EventAny, func(e sdk.Event) {
		switch ev := e.(type) {
		case sdk.RequestSuccess:
			fmt.Printf("✓ %s %s -> %d in %s\n", ev.Method, ev.URL, ev.Status, ev.Duration)
		case sdk.RequestError:
			fmt.Printf("✗ %s %s (queued=%v): %v\n", ev.Method, ev.URL, ev.Queued, ev.Err)
		case sdk.QueueFailed:
			fmt.Printf("✗ replay of %s exhausted after %d attempts\n", ev.QueueID, ev.Attempts)
		}
	})

	ctx := context.Background()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for i := 0; i < 10; i++ {
		if _, err := client.Portfolios.List(ctx, sdk.PageRequest{Page: 1}); err != nil {
			fmt.Printf("  classified as %s, retryable=%v\n", sdk.TypeOf(err), sdk.IsRetryable(err))
		}
		<-ticker.C
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
