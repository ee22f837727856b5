package config

import (
	"net/url"
	"strings"
	"time"
)

// Platform identifies the frontend a client is issuing requests for.
// It is sent to the backend in the X-Platform header.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformMobile  Platform = "mobile"
	PlatformDesktop Platform = "desktop"
	PlatformCLI     Platform = "cli"
)

// Valid reports whether p is one of the known platforms
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformMobile, PlatformDesktop, PlatformCLI:
		return true
	}
	return false
}

// Default values applied by Resolve when an override is absent or invalid
const (
	DefaultBaseURL    = "http://localhost:8080/api"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultVersion    = "v1"
	DefaultPlatform   = PlatformWeb
	DefaultCacheTTL   = 5 * time.Minute
)

// Config is the resolved client configuration. It is created once when a
// client is constructed and never changes afterwards.
type Config struct {
	// BaseURL is prefixed to every relative request path.
	// Default: "http://localhost:8080/api"
	BaseURL string

	// Timeout bounds each dispatch unless a per-call timeout is given.
	// Default: 30s
	Timeout time.Duration

	// MaxRetries is the number of replay failures a queued request may
	// accumulate before it is discarded.
	// Default: 3
	MaxRetries int

	// Version is sent in the X-API-Version header.
	// Default: "v1"
	Version string

	// Platform is sent in the X-Platform header.
	// Default: web
	Platform Platform

	// EnableCache turns on caching of successful GET responses.
	// Default: true
	EnableCache bool

	// CacheTTL is how long a cached GET response stays readable.
	// Default: 5m
	CacheTTL time.Duration

	// EnableOffline queues mutating requests issued while offline.
	// Default: true
	EnableOffline bool

	// EnableRetry requeues failed replays until MaxRetries is reached.
	// When false a failed replay is discarded immediately.
	// Default: true
	EnableRetry bool

	// EnableLogging turns on debug logging inside the client.
	// Default: false
	EnableLogging bool
}

// Overrides holds caller-supplied configuration. A nil field means the
// caller did not set it and the default applies.
type Overrides struct {
	BaseURL       *string
	Timeout       *time.Duration
	MaxRetries    *int
	Version       *string
	Platform      *Platform
	EnableCache   *bool
	CacheTTL      *time.Duration
	EnableOffline *bool
	EnableRetry   *bool
	EnableLogging *bool
}

// Defaults returns the configuration used when no overrides are supplied
func Defaults() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		MaxRetries:    DefaultMaxRetries,
		Version:       DefaultVersion,
		Platform:      DefaultPlatform,
		EnableCache:   true,
		CacheTTL:      DefaultCacheTTL,
		EnableOffline: true,
		EnableRetry:   true,
		EnableLogging: false,
	}
}

// Resolve merges overrides over the defaults. Configuration is advisory:
// a value that is absent or invalid silently keeps its default, so Resolve
// never fails.
func Resolve(o Overrides) Config {
	cfg := Defaults()

	if o.BaseURL != nil {
		if base, ok := normalizeBaseURL(*o.BaseURL); ok {
			cfg.BaseURL = base
		}
	}
	if o.Timeout != nil && *o.Timeout > 0 {
		cfg.Timeout = *o.Timeout
	}
	if o.MaxRetries != nil && *o.MaxRetries >= 0 {
		cfg.MaxRetries = *o.MaxRetries
	}
	if o.Version != nil {
		if v := strings.TrimSpace(*o.Version); v != "" {
			cfg.Version = v
		}
	}
	if o.Platform != nil {
		if p := Platform(strings.ToLower(strings.TrimSpace(string(*o.Platform)))); p.Valid() {
			cfg.Platform = p
		}
	}
	if o.EnableCache != nil {
		cfg.EnableCache = *o.EnableCache
	}
	if o.CacheTTL != nil && *o.CacheTTL > 0 {
		cfg.CacheTTL = *o.CacheTTL
	}
	if o.EnableOffline != nil {
		cfg.EnableOffline = *o.EnableOffline
	}
	if o.EnableRetry != nil {
		cfg.EnableRetry = *o.EnableRetry
	}
	if o.EnableLogging != nil {
		cfg.EnableLogging = *o.EnableLogging
	}

	return cfg
}

// normalizeBaseURL accepts only absolute http(s) URLs and strips the
// trailing slash so paths can be joined onto it.
func normalizeBaseURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return strings.TrimRight(raw, "/"), true
}

// Pointer helpers for building Overrides inline

// String returns a pointer to s
func String(s string) *string { return &s }

// Int returns a pointer to i
func Int(i int) *int { return &i }

// Bool returns a pointer to b
func Bool(b bool) *bool { return &b }

// Duration returns a pointer to d
func Duration(d time.Duration) *time.Duration { return &d }

// Millis returns a pointer to a duration of ms milliseconds. The wire
// configuration surface expresses timeouts in milliseconds.
func Millis(ms int64) *time.Duration {
	d := time.Duration(ms) * time.Millisecond
	return &d
}

// PlatformOf returns a pointer to p
func PlatformOf(p Platform) *Platform { return &p }
