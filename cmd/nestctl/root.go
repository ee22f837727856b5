package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/birbparty/nestlink/internal/cache"
	"github.com/birbparty/nestlink/internal/config"
	"github.com/birbparty/nestlink/internal/database"
	"github.com/birbparty/nestlink/sdk"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath  string
	baseURL     string
	sessionPath string
	verbose     bool
	offline     bool
	redisCache  bool
	durable     bool

	// db is opened by newClient when the durable queue is in use
	db *database.DB
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "nestctl",
		Short:         "Command-line client for the nestlink backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML client configuration file (env NESTLINK_CONFIG)")
	pf.StringVar(&flags.baseURL, "base-url", "", "backend base URL (env NESTLINK_BASE_URL)")
	pf.StringVar(&flags.sessionPath, "session", "", "session file (env NESTLINK_SESSION)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log client activity to stderr")
	pf.BoolVar(&flags.offline, "offline", false, "start the client offline; writes are queued")
	pf.BoolVar(&flags.redisCache, "redis-cache", false, "share the response cache through Redis (REDIS_* env)")
	pf.BoolVar(&flags.durable, "durable-queue", false, "keep the offline queue in PostgreSQL (DATABASE_URL or POSTGRES_* env)")

	root.AddCommand(
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newWhoamiCmd(flags),
		newRawCmd(flags, "get"),
		newRawCmd(flags, "post"),
		newRawCmd(flags, "put"),
		newRawCmd(flags, "delete"),
		newPortfoliosCmd(flags),
		newUploadCmd(flags),
		newQueueCmd(flags),
		newWatchCmd(flags),
	)

	return root
}

// flagOrEnv returns the flag value if set, then the environment value, then
// defaultValue
func flagOrEnv(cmd *cobra.Command, flagName, envName, defaultValue string) string {
	if v, err := cmd.Flags().GetString(flagName); err == nil && v != "" {
		return v
	}
	if v, ok := os.LookupEnv(envName); ok && v != "" {
		return v
	}
	return defaultValue
}

// overrides layers the config file, environment and flags, later layers
// winning
func (f *globalFlags) overrides(cmd *cobra.Command) (config.Overrides, error) {
	var o config.Overrides

	if path := flagOrEnv(cmd, "config", "NESTLINK_CONFIG", ""); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return config.Overrides{}, err
		}
		o = file
	}
	o = config.Merge(o, config.FromEnv())

	flagged := config.Overrides{Platform: config.PlatformOf(config.PlatformCLI)}
	if f.baseURL != "" {
		flagged.BaseURL = config.String(f.baseURL)
	}
	if f.verbose {
		flagged.EnableLogging = config.Bool(true)
	}
	return config.Merge(o, flagged), nil
}

// newClient builds a client from the layered configuration and restores the
// saved session
func (f *globalFlags) newClient(cmd *cobra.Command, opts ...sdk.Option) (*sdk.Client, *Session, error) {
	o, err := f.overrides(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts = append(opts, sdk.WithLogOutput(cmd.ErrOrStderr()))
	if f.offline {
		opts = append(opts, sdk.StartOffline())
	}
	var redisStore *cache.RedisStore
	if f.redisCache {
		redisCfg, err := cache.NewConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		redisStore, err = cache.NewRedisStore(redisCfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sdk.WithCacheStore(redisStore))
	}

	if f.durable {
		store, err := f.queueStore(cmd.Context())
		if err != nil {
			if redisStore != nil {
				redisStore.Close()
			}
			return nil, nil, err
		}
		opts = append(opts, sdk.WithQueueStore(store))
	}

	client := sdk.NewClient(o, opts...)

	session, err := LoadSession(f.sessionFile(cmd))
	if err != nil {
		f.close(client)
		return nil, nil, err
	}
	if session != nil {
		client.SetTokens(session.AccessToken, session.RefreshToken)
	}
	return client, session, nil
}

// queueStore opens PostgreSQL, applies the schema and returns the durable
// queue store
func (f *globalFlags) queueStore(ctx context.Context) (*database.QueueStore, error) {
	if f.db == nil {
		dbCfg, err := database.NewConfigFromEnv()
		if err != nil {
			return nil, err
		}
		db, err := database.NewDB(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		f.db = db
	}
	return database.NewQueueStore(f.db), nil
}

// close releases the client and the database it may be using
func (f *globalFlags) close(client *sdk.Client) {
	if err := client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if f.db != nil {
		f.db.Close()
		f.db = nil
	}
}

func (f *globalFlags) sessionFile(cmd *cobra.Command) string {
	return flagOrEnv(cmd, "session", "NESTLINK_SESSION", DefaultSessionPath())
}

// persistTokens writes the client's current tokens back to the session file.
// Refresh rotates tokens, so every command that may refresh calls this.
func (f *globalFlags) persistTokens(cmd *cobra.Command, client *sdk.Client, user *sdk.User) error {
	access, refresh, ok := client.Tokens()
	if !ok {
		return nil
	}
	return SaveSession(f.sessionFile(cmd), &Session{
		BaseURL:      client.Config().BaseURL,
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	})
}

// printJSON writes v indented to w
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints a queued notice instead of failing when a write was deferred
func report(cmd *cobra.Command, err error) error {
	if sdk.IsQueued(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "offline: request queued for replay")
		return nil
	}
	return err
}

// withClient runs fn with a client and closes it afterwards
func (f *globalFlags) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *sdk.Client, s *Session) error) error {
	client, session, err := f.newClient(cmd)
	if err != nil {
		return err
	}
	defer f.close(client)
	return fn(cmd.Context(), client, session)
}
