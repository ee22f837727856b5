package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/birbparty/nestlink/internal/api"
	"github.com/birbparty/nestlink/internal/config"
	"github.com/birbparty/nestlink/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t       *testing.T
	baseURL string
	session string
}

func newCLI(t *testing.T) *cli {
	t.Helper()

	cfg := api.DefaultConfig()
	store := api.NewStore(cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	writer := api.NewAnalyticsWriter(store, 10, 1)
	t.Cleanup(writer.Shutdown)

	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	api.SetupMiddleware(app, cfg)
	files := storage.NewMemoryStore("http://files.test")
	api.SetupRoutes(app, api.NewHandler(store, files, writer, cfg.MaxUploadBytes), store, cfg)

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)

	return &cli{
		t:       t,
		baseURL: srv.URL + "/api",
		session: filepath.Join(t.TempDir(), "session.json"),
	}
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--base-url", c.baseURL, "--session", c.session}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out, _, err := c.run("login", "--register", "--email", "ada@example.com", "--password", "correct-horse", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ada")

	s, err := LoadSession(c.session)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, c.baseURL, s.BaseURL)

	out, _, err = c.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")

	out, _, err = c.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	s, err = LoadSession(c.session)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, _, err = c.run("whoami")
	assert.Error(t, err)
}

func TestLoginRequiresCredentials(t *testing.T) {
	c := newCLI(t)
	t.Setenv("NESTLINK_PASSWORD", "")

	_, _, err := c.run("login", "--email", "ada@example.com")
	assert.Error(t, err)
}

func TestRawAndPortfolios(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("login", "--register", "--email", "ada@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	out, _, err := c.run("post", "/portfolios", "-d", `{"name":"Work","public":true}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Work"`)

	out, _, err = c.run("portfolios", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Work")
	assert.Contains(t, out, "page 1/1, 1 total")

	out, _, err = c.run("get", "/portfolios", "-q", "page=1", "-q", "pageSize=5")
	require.NoError(t, err)
	assert.Contains(t, out, "Work")

	_, _, err = c.run("get", "/portfolios/missing")
	assert.Error(t, err)

	_, _, err = c.run("post", "/portfolios", "-d", "{broken")
	assert.Error(t, err)
}

func TestOfflineWriteIsQueued(t *testing.T) {
	c := newCLI(t)

	out, errOut, err := c.run("--offline", "post", "/portfolios", "-d", `{"name":"Later"}`)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "queued")
}

func TestUpload(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("login", "--register", "--email", "ada@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	out, _, err := c.run("upload", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded notes.txt (5 bytes)")
}

func TestParseQueryAndHeaders(t *testing.T) {
	q, err := parseQuery([]string{"a=1", "a=2", "b="})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, q["a"])
	assert.Equal(t, "", q.Get("b"))

	_, err = parseQuery([]string{"novalue"})
	assert.Error(t, err)

	h, err := parseHeaders([]string{"X-Trace: abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", h.Get("X-Trace"))

	_, err = parseHeaders([]string{"broken"})
	assert.Error(t, err)
}

func TestOverridesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nestlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retries: 2\nversion: v9\nbaseURL: https://file.example.com\n"), 0o600))

	t.Setenv("NESTLINK_RETRIES", "7")
	t.Setenv("NESTLINK_BASE_URL", "https://env.example.com")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Set("config", path))

	t.Run("environment beats the file", func(t *testing.T) {
		o, err := (&globalFlags{}).overrides(cmd)
		require.NoError(t, err)

		cfg := config.Resolve(o)
		assert.Equal(t, 7, cfg.MaxRetries)
		assert.Equal(t, "v9", cfg.Version, "file values without an env override are kept")
		assert.Equal(t, "https://env.example.com", cfg.BaseURL)
		assert.Equal(t, config.PlatformCLI, cfg.Platform)
	})

	t.Run("flags beat the environment", func(t *testing.T) {
		o, err := (&globalFlags{baseURL: "https://flag.example.com"}).overrides(cmd)
		require.NoError(t, err)
		assert.Equal(t, "https://flag.example.com", config.Resolve(o).BaseURL)
	})
}
