package testdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSuite provides common test setup and utilities
type TestSuite struct {
	T          *testing.T
	Server     *MockServer
	BaseURL    string
	Context    context.Context
	CancelFunc context.CancelFunc
}

// NewTestSuite creates a new test suite with mock server
func NewTestSuite(t *testing.T) *TestSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server := NewMockServer()

	return &TestSuite{
		T:          t,
		Server:     server,
		BaseURL:    server.URL,
		Context:    ctx,
		CancelFunc: cancel,
	}
}

// Cleanup cleans up test resources
func (ts *TestSuite) Cleanup() {
	if ts.CancelFunc != nil {
		ts.CancelFunc()
	}
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// RequireEventuallyConsistent requires that a condition becomes true within timeout
func RequireEventuallyConsistent(t *testing.T, condition func() bool, timeout time.Duration, tick time.Duration, msgAndArgs ...any) {
	require.Eventually(t, condition, timeout, tick, msgAndArgs...)
}

// Clock is a manually advanced time source for TTL tests
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AssertJSONBody decodes a recorded request body into a map
func AssertJSONBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), "request body should be JSON")
	return out
}

// MockTransport is an http.RoundTripper that answers from canned responses
// keyed by "METHOD /path" and counts every round trip.
type MockTransport struct {
	mu       sync.Mutex
	routes   map[string]*MockResponse
	fallback *MockResponse
	calls    map[string]int
}

// MockResponse is a canned transport outcome. A non-nil Error fails the round
// trip; otherwise Body is encoded as JSON with the given Status.
type MockResponse struct {
	Status int
	Body   any
	Error  error
	Delay  time.Duration
}

// NewMockTransport creates a transport with no routes
func NewMockTransport() *MockTransport {
	return &MockTransport{
		routes: make(map[string]*MockResponse),
		calls:  make(map[string]int),
	}
}

func routeKey(method, path string) string {
	return method + " " + path
}

// RoundTrip implements http.RoundTripper
func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := routeKey(req.Method, req.URL.Path)

	mt.mu.Lock()
	mt.calls[key]++
	resp, ok := mt.routes[key]
	if !ok {
		resp = mt.fallback
	}
	mt.mu.Unlock()

	if resp == nil {
		return nil, fmt.Errorf("no mock response for %s", key)
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	body, err := json.Marshal(resp.Body)
	if err != nil {
		return nil, err
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode:    resp.Status,
		Status:        http.StatusText(resp.Status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// SetResponse answers method and path with resp
func (mt *MockTransport) SetResponse(method, path string, resp *MockResponse) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.routes[routeKey(method, path)] = resp
}

// SetDefaultResponse answers every unrouted request with resp
func (mt *MockTransport) SetDefaultResponse(resp *MockResponse) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.fallback = resp
}

// GetCallCount returns how many round trips hit method and path
func (mt *MockTransport) GetCallCount(method, path string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.calls[routeKey(method, path)]
}

// ConcurrentTestHelper helps with concurrent testing
type ConcurrentTestHelper struct {
	t         *testing.T
	wg        sync.WaitGroup
	errors    []error
	errorsMux sync.Mutex
}

// NewConcurrentTestHelper creates a new concurrent test helper
func NewConcurrentTestHelper(t *testing.T) *ConcurrentTestHelper {
	return &ConcurrentTestHelper{
		t:      t,
		errors: make([]error, 0),
	}
}

// Run executes a function concurrently
func (cth *ConcurrentTestHelper) Run(numGoroutines int, fn func(id int) error) {
	cth.wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer cth.wg.Done()

			if err := fn(id); err != nil {
				cth.errorsMux.Lock()
				cth.errors = append(cth.errors, fmt.Errorf("goroutine %d: %w", id, err))
				cth.errorsMux.Unlock()
			}
		}(i)
	}
}

// Wait waits for all goroutines to complete and checks for errors
func (cth *ConcurrentTestHelper) Wait() {
	cth.wg.Wait()

	cth.errorsMux.Lock()
	defer cth.errorsMux.Unlock()

	if len(cth.errors) > 0 {
		for _, err := range cth.errors {
			cth.t.Error(err)
		}
		cth.t.Fatalf("Concurrent test failed with %d errors", len(cth.errors))
	}
}
