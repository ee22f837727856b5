// Package sdk is the Go client for the nestlink portfolio backend. Every
// frontend (web, mobile, desktop, CLI) talks to the backend through a single
// Client, which bundles the concerns a flaky-network application needs:
//
//   - Resolved configuration that never fails to construct
//   - GET response caching with a TTL and lazy expiry
//   - Bearer token attachment
//   - An offline queue for mutating requests, replayed when connectivity returns
//   - Lifecycle events for requests, connectivity and queue replays
//
// # Basic Usage
//
// Create a client and call the domain facade:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/birbparty/nestlink/sdk"
//	)
//
//	func main() {
//	    client := sdk.NewClient(sdk.Overrides{
//	        BaseURL: sdk.String("https://api.example.com/api"),
//	    })
//	    defer client.Close()
//
//	    ctx := context.Background()
//
//	    if _, err := client.Auth.Login(ctx, "ada@example.com", "secret"); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    page, err := client.Portfolios.List(ctx, sdk.PageRequest{Page: 1, PageSize: 20})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, p := range page.Items {
//	        log.Printf("%s: %s", p.ID, p.Name)
//	    }
//	}
//
// # Configuration
//
// Overrides are optional pointers. Anything absent or invalid keeps its
// default, so NewClient never returns an error:
//
//	client := sdk.NewClient(sdk.Overrides{
//	    Timeout:     sdk.Millis(5000),
//	    MaxRetries:  sdk.Int(5),
//	    Platform:    sdk.PlatformOf(sdk.PlatformMobile),
//	    CacheTTL:    sdk.Duration(time.Minute),
//	    EnableRetry: sdk.Bool(false),
//	})
//
// The same surface can be read from YAML with LoadConfigFile:
//
//	baseURL: https://api.example.com/api
//	timeout: 5000        # milliseconds, or a duration such as "5s"
//	retries: 5
//	platform: desktop
//	cacheTimeout: 1m
//
// # Raw Dispatch
//
// Endpoints without a facade method go through Dispatch, which decodes the
// response envelope's data into any type:
//
//	resp, err := sdk.Dispatch[[]Badge](ctx, client, http.MethodGet, "/badges", nil, nil)
//	if err != nil {
//	    return err
//	}
//	if resp.Cached {
//	    log.Println("served from cache")
//	}
//
// # Offline Mode
//
// The client does not probe the network. The host application reports
// connectivity with SetOnline. While offline, POST, PUT, PATCH and DELETE
// are queued and return a *QueuedError; GET fails with an *OfflineError
// unless a fresh cache entry exists. Going back online replays the queue in
// order in the background:
//
//	client.SetOnline(false)
//
//	_, err := client.Projects.Create(ctx, portfolioID, input)
//	if sdk.IsQueued(err) {
//	    showPendingBadge()
//	}
//
//	sdk.Subscribe(client, func(e sdk.QueueSuccess) {
//	    clearPendingBadge(e.QueueID)
//	})
//
//	client.SetOnline(true)
//
// A replay that fails is requeued at the tail until it has failed
// MaxRetries+1 times in total, then it is discarded with a queue:failed
// event. Use WithQueueStore to keep the queue in PostgreSQL across restarts.
//
// # Events
//
// Handlers run synchronously in registration order. Subscribe and On both
// return a Subscription that removes exactly that handler:
//
//	sub := client.On(sdk.EventRequestError, func(e sdk.Event) {
//	    log.Printf("request failed: %v", e.(sdk.RequestError).Err)
//	})
//	defer client.Off(sdk.EventRequestError, sub)
//
// # Error Handling
//
// Errors are typed and work with errors.Is and errors.As:
//
//	_, err := client.Portfolios.Get(ctx, id)
//	switch {
//	case sdk.IsNotFound(err):
//	    return nil
//	case sdk.IsUnauthorized(err):
//	    _, err = client.Auth.Refresh(ctx)
//	case sdk.IsRetryable(err):
//	    // network failure, timeout, 5xx or 429
//	}
//
//	var httpErr *sdk.HTTPError
//	if errors.As(err, &httpErr) {
//	    log.Printf("%s (request %s)", httpErr.Code, httpErr.RequestID)
//	}
//
// There is no inline retry. A request that fails while online is surfaced
// to the caller, never queued.
//
// # Thread Safety
//
// The client is safe for concurrent use. Close waits for background queue
// drains to finish.
package sdk
