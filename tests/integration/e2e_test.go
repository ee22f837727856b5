package integration

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/birbparty/nestlink/internal/cache"
	"github.com/birbparty/nestlink/internal/database"
	"github.com/birbparty/nestlink/internal/events"
	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/birbparty/nestlink/sdk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, b *backend, opts ...sdk.Option) *sdk.Client {
	t.Helper()
	c := sdk.NewClient(sdk.Overrides{
		BaseURL:  sdk.String(b.URL),
		Platform: sdk.PlatformOf(sdk.PlatformDesktop),
		Timeout:  sdk.Duration(5 * time.Second),
	}, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func registerUser(t *testing.T, c *sdk.Client) *sdk.Session {
	t.Helper()
	s, err := c.Auth.Register(context.Background(), sdk.Registration{
		Email:    uuid.NewString() + "@example.com",
		Password: "correct-horse",
		Name:     "Integration",
	})
	require.NoError(t, err)
	return s
}

func TestEndToEnd_FacadeAgainstBackend(t *testing.T) {
	b := startBackend(t)
	c := newClient(t, b)
	ctx := context.Background()

	session := registerUser(t, c)
	assert.True(t, c.Authenticated())

	me, err := c.Auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, me.ID)

	p, err := c.Portfolios.Create(ctx, sdk.PortfolioInput{Name: "Work", Public: true})
	require.NoError(t, err)

	project, err := c.Projects.Create(ctx, p.ID, sdk.ProjectInput{Title: "Site", Tags: []string{"go"}})
	require.NoError(t, err)

	require.NoError(t, c.Analytics.Track(ctx, sdk.AnalyticsEvent{Type: "view", PortfolioID: p.ID, ProjectID: project.ID}))
	// Events are folded in the background; poll past the client cache
	assert.Eventually(t, func() bool {
		resp, err := sdk.Dispatch[sdk.AnalyticsSummary](ctx, c, http.MethodGet, "/analytics/summary", nil, &sdk.RequestOptions{
			Query:     url.Values{"portfolioId": {p.ID}},
			SkipCache: true,
		})
		return err == nil && resp.Data.Views == 1
	}, 5*time.Second, 50*time.Millisecond)

	summary, err := c.Analytics.Summary(ctx, p.ID, "7d")
	require.NoError(t, err)
	assert.Equal(t, "7d", summary.Period)

	info, err := c.Files.Upload(ctx, "cover.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, 1, b.Files.Len())

	page, err := c.Portfolios.List(ctx, sdk.PageRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Pagination.Total)

	_, err = c.Portfolios.Get(ctx, "missing")
	assert.True(t, sdk.IsNotFound(err))

	require.NoError(t, c.Auth.Logout(ctx))
	_, err = c.Portfolios.List(ctx, sdk.PageRequest{})
	assert.True(t, sdk.IsUnauthorized(err))
}

func TestEndToEnd_DurableQueueSurvivesRestart(t *testing.T) {
	resetDatabase(t)
	b := startBackend(t)
	ctx := context.Background()
	store := database.NewQueueStore(testDB)

	first := newClient(t, b, sdk.WithQueueStore(store))
	session := registerUser(t, first)

	first.SetOnline(false)
	_, err := first.Portfolios.Create(ctx, sdk.PortfolioInput{Name: "Queued while offline"})
	require.True(t, sdk.IsQueued(err), "got %v", err)
	require.NoError(t, first.Close())

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A new process picks the queue up where the last one stopped
	second := newClient(t, b, sdk.WithQueueStore(store), sdk.StartOffline())
	second.SetTokens(session.AccessToken, session.RefreshToken)

	done := make(chan sdk.QueueSuccess, 1)
	sdk.Subscribe(second, func(e sdk.QueueSuccess) { done <- e })
	second.SetOnline(true)

	select {
	case e := <-done:
		assert.Equal(t, http.MethodPost, e.Method)
		assert.Equal(t, http.StatusCreated, e.Status)
	case <-time.After(10 * time.Second):
		t.Fatal("queued request was not replayed")
	}

	assert.Len(t, b.Store.ListPortfolios(session.User.ID), 1)
	n, err = store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEndToEnd_ExhaustedRequestsAreBuried(t *testing.T) {
	resetDatabase(t)
	b := startBackend(t)
	ctx := context.Background()
	store := database.NewQueueStore(testDB)

	c := sdk.NewClient(sdk.Overrides{
		BaseURL:    sdk.String(b.URL),
		MaxRetries: sdk.Int(0),
	}, sdk.WithQueueStore(store))
	t.Cleanup(func() { _ = c.Close() })
	registerUser(t, c)

	c.SetOnline(false)
	_, err := c.Portfolios.Update(ctx, "missing", sdk.PortfolioInput{Name: "Gone"})
	require.True(t, sdk.IsQueued(err))

	var mu sync.Mutex
	var failed []sdk.QueueFailed
	sdk.Subscribe(c, func(e sdk.QueueFailed) {
		mu.Lock()
		failed = append(failed, e)
		mu.Unlock()
	})

	snapshot, err := c.Queued(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	c.SetOnline(true)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, 10*time.Second, 50*time.Millisecond)

	mu.Lock()
	e := failed[0]
	mu.Unlock()
	assert.Equal(t, 1, e.Attempts)
	assert.True(t, sdk.IsNotFound(e.Err))

	require.NoError(t, store.Bury(ctx, snapshot[0], e.Attempts, e.Err))
	dead, err := store.Dead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, snapshot[0].ID, dead[0].ID)
	assert.Equal(t, 1, dead[0].Attempts)
}

func TestEndToEnd_SharedRedisCache(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()
	prefix := "nestlink:test:" + uuid.NewString() + ":"

	storeA, err := cache.NewRedisStore(redisConfig(prefix))
	require.NoError(t, err)
	storeB, err := cache.NewRedisStore(redisConfig(prefix))
	require.NoError(t, err)

	a := newClient(t, b, sdk.WithCacheStore(storeA))
	session := registerUser(t, a)
	_, err = a.Portfolios.Create(ctx, sdk.PortfolioInput{Name: "First"})
	require.NoError(t, err)

	warm, err := sdk.Dispatch[[]sdk.Portfolio](ctx, a, http.MethodGet, "/portfolios", nil, nil)
	require.NoError(t, err)
	assert.False(t, warm.Cached)

	// Changes behind the cache stay invisible until the entry expires
	b.Store.CreatePortfolio(session.User.ID, sdk.PortfolioInput{Name: "Second"})

	other := newClient(t, b, sdk.WithCacheStore(storeB))
	other.SetTokens(session.AccessToken, session.RefreshToken)

	hit, err := sdk.Dispatch[[]sdk.Portfolio](ctx, other, http.MethodGet, "/portfolios", nil, nil)
	require.NoError(t, err)
	assert.True(t, hit.Cached, "a second process reads the shared entry")
	assert.Len(t, hit.Data, 1)

	fresh, err := sdk.Dispatch[[]sdk.Portfolio](ctx, other, http.MethodGet, "/portfolios", nil, &sdk.RequestOptions{SkipCache: true})
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Len(t, fresh.Data, 2)

	require.NoError(t, other.ClearCache(ctx))
	n, err := storeA.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEndToEnd_NATSConnectivity(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	c := newClient(t, b)
	registerUser(t, c)

	cfg := &events.BridgeConfig{
		URL:                 testContainers.NATS.URL,
		Name:                "nestlink-e2e",
		SubjectPrefix:       "e2e." + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ConnectivitySubject: "e2e.connectivity." + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	log := telemetry.NewClientLogger(false, nil)

	bus := events.NewBus(log)
	c.On(sdk.EventAny, bus.Emit)
	bridge, err := events.NewNATSBridge(cfg, bus, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bridge.Close() })

	bridge.PublishEvents()
	require.NoError(t, bridge.WatchConnectivity(c.SetOnline))

	var mu sync.Mutex
	var seen []events.Name
	require.NoError(t, bridge.Stream(func(env events.Envelope) {
		mu.Lock()
		seen = append(seen, env.Name)
		mu.Unlock()
	}))
	require.NoError(t, bridge.Flush())

	signaller, err := events.NewNATSBridge(cfg, events.NewBus(log), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = signaller.Close() })

	require.NoError(t, signaller.SignalConnectivity(false))
	assert.Eventually(t, func() bool { return !c.Online() }, 5*time.Second, 20*time.Millisecond)

	_, err = c.Portfolios.Create(ctx, sdk.PortfolioInput{Name: "Via NATS"})
	require.True(t, sdk.IsQueued(err))

	require.NoError(t, signaller.SignalConnectivity(true))
	assert.Eventually(t, func() bool {
		n, err := c.QueueLen(ctx)
		return err == nil && n == 0 && c.Online()
	}, 10*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var offline, queued, online bool
		for _, name := range seen {
			switch name {
			case events.NameNetworkOffline:
				offline = true
			case events.NameQueueSuccess:
				queued = true
			case events.NameNetworkOnline:
				online = true
			}
		}
		return offline && queued && online
	}, 5*time.Second, 50*time.Millisecond)
}
