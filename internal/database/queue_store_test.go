package database

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/birbparty/nestlink/internal/events"
	"github.com/birbparty/nestlink/internal/queue"
	"github.com/birbparty/nestlink/tests/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueueStore(t *testing.T) *QueueStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pg, err := testutil.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	// Bootstrap the schema through database/sql so the DDL is checked by a
	// second driver
	sqlDB, err := sql.Open("postgres", pg.URL)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, Schema)
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db, err := NewDB(ctx, &Config{URL: pg.URL})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	// Migrate is idempotent
	require.NoError(t, db.Migrate(ctx))

	return NewQueueStore(db)
}

func TestQueueStoreOrdering(t *testing.T) {
	s := setupQueueStore(t)
	ctx := context.Background()

	a := queue.NewRequest(http.MethodPost, "http://api.test/a", http.Header{"Content-Type": {"application/json"}}, []byte(`{"a":1}`))
	b := queue.NewRequest(http.MethodDelete, "http://api.test/b", nil, nil)
	c := queue.NewRequest(http.MethodPut, "http://api.test/c", nil, []byte(`{}`))
	for _, r := range []queue.Request{a, b, c} {
		require.NoError(t, s.Append(ctx, r))
	}

	a.RetryCount = 1
	require.NoError(t, s.Requeue(ctx, a))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, 1, list[2].RetryCount)
	assert.Equal(t, "application/json", list[2].Header.Get("Content-Type"))
	assert.Equal(t, []byte(`{"a":1}`), list[2].Body)
	assert.Nil(t, list[0].Header)

	require.NoError(t, s.Remove(ctx, b.ID))
	assert.ErrorIs(t, s.Remove(ctx, b.ID), queue.ErrNotQueued)
	assert.ErrorIs(t, s.Requeue(ctx, b), queue.ErrNotQueued)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueStoreDrain(t *testing.T) {
	s := setupQueueStore(t)
	ctx := context.Background()

	bus := events.NewBus(nil)
	var failed []events.QueueFailed
	events.Subscribe(bus, func(e events.QueueFailed) {
		failed = append(failed, e)
		list, _ := s.List(ctx)
		for _, r := range list {
			require.NotEqual(t, e.QueueID, r.ID)
		}
	})

	q := queue.New(s, bus, queue.Options{MaxRetries: 1, EnableRetry: true})
	ok := queue.NewRequest(http.MethodPost, "http://api.test/ok", nil, nil)
	bad := queue.NewRequest(http.MethodPost, "http://api.test/bad", nil, nil)
	require.NoError(t, q.Enqueue(ctx, ok))
	require.NoError(t, q.Enqueue(ctx, bad))

	errBad := errors.New("bad gateway")
	replay := func(_ context.Context, r queue.Request) (int, error) {
		if r.ID == bad.ID {
			return http.StatusBadGateway, errBad
		}
		return http.StatusOK, nil
	}

	first, err := q.Drain(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, 1, first.Requeued)

	second, err := q.Drain(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Discarded)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)

	require.NoError(t, s.Bury(ctx, bad, failed[0].Attempts, failed[0].Err))
	dead, err := s.Dead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, bad.ID, dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempts)
	assert.Equal(t, "bad gateway", dead[0].Error)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfigConnectionString(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d"}
	assert.Equal(t, "postgres://u:p@db:5433/d?sslmode=disable", cfg.ConnectionString())

	cfg.URL = "postgres://other/x"
	assert.Equal(t, "postgres://other/x", cfg.ConnectionString())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-port")
	_, err := NewConfigFromEnv()
	assert.Error(t, err)

	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_DB", "queue")
	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "queue", cfg.Database)
	assert.Equal(t, "nestlink", cfg.User)
}
