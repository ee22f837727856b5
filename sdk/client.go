package sdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/birbparty/nestlink/internal/auth"
	"github.com/birbparty/nestlink/internal/cache"
	"github.com/birbparty/nestlink/internal/config"
	"github.com/birbparty/nestlink/internal/events"
	"github.com/birbparty/nestlink/internal/queue"
	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Client is the single entry point through which a frontend talks to the
// backend. It owns response caching, the offline queue, the bearer token
// pair and the event bus. All methods are safe for concurrent use.
//
// Example:
//
//	client := sdk.NewClient(sdk.Overrides{
//	    BaseURL:  sdk.String("https://api.example.com/api"),
//	    Platform: sdk.PlatformOf(sdk.PlatformDesktop),
//	})
//	defer client.Close()
//
//	sdk.Subscribe(client, func(e sdk.QueueFailed) {
//	    log.Printf("gave up on %s %s after %d attempts", e.Method, e.URL, e.Attempts)
//	})
//
//	if _, err := client.Auth.Login(ctx, "ada@example.com", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	page, err := client.Portfolios.List(ctx, sdk.PageRequest{Page: 1})
type Client struct {
	cfg     config.Config
	http    *http.Client
	cache   *cache.Manager
	auth    *auth.Manager
	queue   *queue.Queue
	bus     *events.Bus
	log     *logrus.Logger
	metrics *telemetry.ClientMetrics
	now     func() time.Time

	online atomic.Bool
	closed atomic.Bool

	// lifecycle orders drains.Add against Close
	lifecycle sync.Mutex
	drains    sync.WaitGroup

	// Domain facade
	Auth       *AuthAPI
	Portfolios *PortfoliosAPI
	Projects   *ProjectsAPI
	Analytics  *AnalyticsAPI
	Files      *FilesAPI
}

type clientOptions struct {
	httpClient *http.Client
	cacheStore cache.Store
	queueStore queue.Store
	now        func() time.Time
	logOutput  io.Writer
	registerer prometheus.Registerer
	offline    bool
}

// Option customizes a Client
type Option func(*clientOptions)

// WithHTTPClient sets the HTTP client used for every call. Its Timeout is
// left alone; per-call deadlines come from Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithCacheStore replaces the in-memory response cache, for example with a
// Redis-backed store shared between processes
func WithCacheStore(s CacheStore) Option {
	return func(o *clientOptions) {
		o.cacheStore = s
	}
}

// WithQueueStore replaces the in-memory offline queue, for example with the
// PostgreSQL store so queued requests survive a restart
func WithQueueStore(s QueueStore) Option {
	return func(o *clientOptions) {
		o.queueStore = s
	}
}

// WithClock sets the time source used for cache expiry
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		o.now = now
	}
}

// WithLogOutput sets where debug logs go when EnableLogging is set.
// Default: os.Stderr
func WithLogOutput(w io.Writer) Option {
	return func(o *clientOptions) {
		o.logOutput = w
	}
}

// WithMetrics registers Prometheus metrics for this client with reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.registerer = reg
	}
}

// StartOffline creates the client in the offline state
func StartOffline() Option {
	return func(o *clientOptions) {
		o.offline = true
	}
}

// NewClient resolves o over the defaults and creates a client. It never
// fails: invalid configuration values fall back to their defaults.
func NewClient(o Overrides, opts ...Option) *Client {
	options := clientOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := config.Resolve(o)
	log := telemetry.NewClientLogger(cfg.EnableLogging, options.logOutput)
	bus := events.NewBus(log)

	c := &Client{
		cfg:  cfg,
		http: options.httpClient,
		auth: auth.NewManager(),
		bus:  bus,
		log:  log,
		now:  options.now,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	cacheOpts := []cache.Option{cache.WithClock(options.now)}
	if options.registerer != nil {
		c.metrics = telemetry.NewClientMetrics(options.registerer)
		c.metrics.Attach(bus)
		cacheOpts = append(cacheOpts, cache.WithHitRecorder(c.metrics))
	}
	c.cache = cache.NewManager(options.cacheStore, cfg.CacheTTL, cacheOpts...)

	c.queue = queue.New(options.queueStore, bus, queue.Options{
		MaxRetries:  cfg.MaxRetries,
		EnableRetry: cfg.EnableRetry,
		Online:      c.online.Load,
		Logger:      log,
	})

	c.online.Store(!options.offline)

	c.Auth = &AuthAPI{c: c}
	c.Portfolios = &PortfoliosAPI{c: c}
	c.Projects = &ProjectsAPI{c: c}
	c.Analytics = &AnalyticsAPI{c: c}
	c.Files = &FilesAPI{c: c}

	log.WithFields(logrus.Fields{
		"base_url": cfg.BaseURL,
		"platform": cfg.Platform,
		"version":  cfg.Version,
		"cache":    cfg.EnableCache,
		"offline":  cfg.EnableOffline,
	}).Debug("Client created")

	return c
}

// Config returns the resolved configuration
func (c *Client) Config() Config {
	return c.cfg
}

// On registers h for events named name and returns a handle for Off.
// Handlers run synchronously in registration order; a panicking handler is
// recovered and logged.
func (c *Client) On(name EventName, h func(Event)) Subscription {
	return c.bus.On(name, h)
}

// Off removes a handler registered with On
func (c *Client) Off(name EventName, sub Subscription) bool {
	return c.bus.Off(name, sub)
}

// Subscribe registers a typed event handler on c
//
// Example:
//
//	sdk.Subscribe(client, func(e sdk.RequestError) {
//	    if e.Queued {
//	        showPendingBadge()
//	    }
//	})
func Subscribe[E Event](c *Client, h func(E)) Subscription {
	return events.Subscribe(c.bus, h)
}

// Unsubscribe removes a handler registered with Subscribe
func Unsubscribe[E Event](c *Client, sub Subscription) bool {
	return events.Unsubscribe[E](c.bus, sub)
}

// SetTokens stores the bearer token pair attached to every request
func (c *Client) SetTokens(access, refresh string) {
	c.auth.SetTokens(access, refresh)
}

// ClearTokens removes the stored token pair
func (c *Client) ClearTokens() {
	c.auth.ClearTokens()
}

// Tokens returns the stored token pair
func (c *Client) Tokens() (access, refresh string, ok bool) {
	s, ok := c.auth.Tokens()
	return s.AccessToken, s.RefreshToken, ok
}

// Authenticated reports whether an access token is stored
func (c *Client) Authenticated() bool {
	return c.auth.Authenticated()
}

// Online reports the client's view of connectivity
func (c *Client) Online() bool {
	return c.online.Load()
}

// SetOnline records a connectivity change. Events fire only on transitions;
// an offline to online transition starts a background drain of the offline
// queue.
func (c *Client) SetOnline(online bool) {
	if !c.online.CompareAndSwap(!online, online) {
		return
	}

	now := c.now()
	if !online {
		c.log.Debug("Connectivity lost")
		c.bus.Emit(events.NetworkOffline{At: now})
		return
	}

	c.log.Debug("Connectivity restored")
	c.bus.Emit(events.NetworkOnline{At: now})

	c.lifecycle.Lock()
	if c.closed.Load() {
		c.lifecycle.Unlock()
		return
	}
	c.drains.Add(1)
	c.lifecycle.Unlock()

	go func() {
		defer c.drains.Done()
		if _, err := c.Drain(context.Background()); err != nil {
			c.log.WithError(err).Debug("Background drain failed")
		}
	}()
}

// Drain replays the offline queue once, synchronously. A drain already in
// progress makes this a no-op reported through DrainResult.Skipped.
func (c *Client) Drain(ctx context.Context) (DrainResult, error) {
	if c.closed.Load() {
		return DrainResult{}, ErrClientClosed
	}
	return c.queue.Drain(ctx, c.replay)
}

// Queued returns the offline queue, head first
func (c *Client) Queued(ctx context.Context) ([]QueuedRequest, error) {
	return c.queue.List(ctx)
}

// QueueLen returns the number of queued requests
func (c *Client) QueueLen(ctx context.Context) (int, error) {
	return c.queue.Len(ctx)
}

// ClearQueue drops every queued request without replaying it
func (c *Client) ClearQueue(ctx context.Context) error {
	return c.queue.Clear(ctx)
}

// ClearCache empties the response cache
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// Close waits for background drains, detaches metrics and releases the
// cache store. Close is safe to call multiple times.
func (c *Client) Close() error {
	c.lifecycle.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.lifecycle.Unlock()
		return nil
	}
	c.lifecycle.Unlock()

	c.drains.Wait()
	if c.metrics != nil {
		c.metrics.Detach()
	}
	c.http.CloseIdleConnections()

	err := c.cache.Close()
	if errors.Is(err, cache.ErrCacheClosed) {
		err = nil
	}
	return err
}
