// Offline Queue Example
// This example shows how mutating requests issued while offline are queued
// and replayed in order once connectivity returns.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/birbparty/nestlink/sdk"
)

func main() {
	client := sdk.NewClient(sdk.Overrides{
		BaseURL:    sdk.String(getEnv("NESTLINK_BASE_URL", "http://localhost:8080/api")),
		MaxRetries: sdk.Int(2),
	})
	defer client.Close()

	ctx := context.Background()

	if _, err := client.Auth.Login(ctx, "birb@example.com", "birbword"); err != nil {
		log.Fatalf("Failed to log in: %v", err)
	}

	portfolio, err := client.Portfolios.Create(ctx, sdk.PortfolioInput{Name: "Field notes"})
	if err != nil {
		log.Fatalf("Failed to create portfolio: %v", err)
	}

	var wg sync.WaitGroup

	sdk.Subscribe(client, func(e sdk.NetworkOffline) {
		fmt.Println("📴 Offline")
	})
	sdk.Subscribe(client, func(e sdk.NetworkOnline) {
		fmt.Println("📶 Back online, replaying queue")
	})
	sdk.Subscribe(client, func(e sdk.QueueSuccess) {
		fmt.Printf("✓ Replayed %s %s (status %d, attempt %d)\n", e.Method, e.URL, e.Status, e.Attempts)
		wg.Done()
	})
	sdk.Subscribe(client, func(e sdk.QueueFailed) {
		fmt.Printf("✗ Gave up on %s %s after %d attempts: %v\n", e.Method, e.URL, e.Attempts, e.Err)
		wg.Done()
	})

	// Example 1: Writes while offline are queued
	fmt.Println("=== Example 1: Queue while offline ===")
	client.SetOnline(false)

	for _, title := range []string{"Heron", "Kingfisher", "Wren"} {
		_, err := client.Projects.Create(ctx, portfolio.ID, sdk.ProjectInput{Title: title})
		var queued *sdk.QueuedError
		if sdk.IsQueued(err) && errors.As(err, &queued) {
			fmt.Printf("⏳ %s queued as %s\n", title, queued.QueueID)
			wg.Add(1)
			continue
		}
		log.Fatalf("Expected the request to be queued, got %v", err)
	}

	// Example 2: Reads fail fast unless cached
	fmt.Println("\n=== Example 2: Reads while offline ===")
	if _, err := client.Projects.List(ctx, portfolio.ID, sdk.PageRequest{}); sdk.IsOffline(err) {
		fmt.Println("✓ Uncached read refused while offline")
	}

	n, _ := client.QueueLen(ctx)
	fmt.Printf("Queue holds %d requests\n", n)

	// Example 3: Reconnect and drain
	fmt.Println("\n=== Example 3: Reconnect ===")
	client.SetOnline(true)
	wg.Wait()

	page, err := client.Projects.List(ctx, portfolio.ID, sdk.PageRequest{})
	if err != nil {
		log.Fatalf("Failed to list projects: %v", err)
	}
	for _, p := range page.Items {
		fmt.Printf("  - %s\n", p.Title)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
