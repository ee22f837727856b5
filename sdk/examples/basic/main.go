package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/birbparty/nestlink/sdk"
)

func main() {
	// Create a client pointed at the dev backend (go run ./cmd/api)
	client := sdk.NewClient(sdk.Overrides{
		BaseURL:  sdk.String(getEnv("NESTLINK_BASE_URL", "http://localhost:8080/api")),
		Timeout:  sdk.Duration(10 * time.Second),
		Platform: sdk.PlatformOf(sdk.PlatformCLI),
	})
	defer client.Close()

	ctx := context.Background()

	// Example 1: Register or log in
	fmt.Println("--- Example 1: Session ---")
	session, err := client.Auth.Login(ctx, "birb@example.com", "birbword")
	if sdk.IsUnauthorized(err) {
		session, err = client.Auth.Register(ctx, sdk.Registration{
			Email:    "birb@example.com",
			Password: "birbword",
			Name:     "Birb McFly",
		})
	}
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	fmt.Printf("✓ Logged in as %s\n", session.User.Email)

	// Example 2: Create a portfolio with a project
	fmt.Println("\n--- Example 2: Portfolio ---")
	portfolio, err := client.Portfolios.Create(ctx, sdk.PortfolioInput{
		Name:        "Birdhouses",
		Description: "Things I built",
		Public:      true,
	})
	if err != nil {
		log.Fatalf("Failed to create portfolio: %v", err)
	}
	fmt.Printf("✓ Created portfolio %s\n", portfolio.ID)

	project, err := client.Projects.Create(ctx, portfolio.ID, sdk.ProjectInput{
		Title: "Cedar feeder",
		Tags:  []string{"woodwork"},
	})
	if err != nil {
		log.Fatalf("Failed to create project: %v", err)
	}
	fmt.Printf("✓ Added project %s\n", project.ID)

	// Example 3: Cached reads
	fmt.Println("\n--- Example 3: Cache ---")
	for i := 0; i < 2; i++ {
		resp, err := sdk.Dispatch[sdk.Portfolio](ctx, client, "GET", "/portfolios/"+portfolio.ID, nil, nil)
		if err != nil {
			log.Fatalf("Failed to get portfolio: %v", err)
		}
		fmt.Printf("✓ Read %q (cached: %v)\n", resp.Data.Name, resp.Cached)
	}

	// Example 4: Pagination
	fmt.Println("\n--- Example 4: Listing ---")
	page, err := client.Portfolios.List(ctx, sdk.PageRequest{Page: 1, PageSize: 10})
	if err != nil {
		log.Fatalf("Failed to list portfolios: %v", err)
	}
	fmt.Printf("✓ %d of %d portfolios\n", len(page.Items), page.Pagination.Total)

	// Example 5: Error handling
	fmt.Println("\n--- Example 5: Errors ---")
	_, err = client.Portfolios.Get(ctx, "does-not-exist")
	var httpErr *sdk.HTTPError
	switch {
	case sdk.IsNotFound(err) && errors.As(err, &httpErr):
		fmt.Printf("✓ Not found as expected (request %s)\n", httpErr.RequestID)
	case err != nil:
		log.Printf("Unexpected error: %v", err)
	}

	// Cleanup
	if err := client.Portfolios.Delete(ctx, portfolio.ID); err != nil {
		log.Printf("Failed to delete portfolio: %v", err)
	}
	if err := client.Auth.Logout(ctx); err != nil {
		log.Printf("Failed to log out: %v", err)
	}
	fmt.Println("\n✓ Done")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
