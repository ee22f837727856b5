package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the wire configuration surface. Durations accept either
// integer milliseconds or a duration string such as "5m" or "1d".
type fileConfig struct {
	BaseURL       *string   `yaml:"baseURL"`
	Timeout       *duration `yaml:"timeout"`
	Retries       *int      `yaml:"retries"`
	Version       *string   `yaml:"version"`
	Platform      *string   `yaml:"platform"`
	EnableCache   *bool     `yaml:"enableCache"`
	CacheTimeout  *duration `yaml:"cacheTimeout"`
	EnableOffline *bool     `yaml:"enableOffline"`
	EnableRetry   *bool     `yaml:"enableRetry"`
	EnableLogging *bool     `yaml:"enableLogging"`
}

type duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration at line %d", node.Line)
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration at line %d: %w", node.Line, err)
	}
	d.Duration = parsed
	return nil
}

// LoadFile reads overrides from a YAML file. Unknown keys are ignored.
// Values are not validated here; Resolve falls back for invalid ones.
func LoadFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration into overrides
func Parse(data []byte) (Overrides, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Overrides{}, fmt.Errorf("failed to parse config: %w", err)
	}

	o := Overrides{
		BaseURL:       fc.BaseURL,
		MaxRetries:    fc.Retries,
		Version:       fc.Version,
		EnableCache:   fc.EnableCache,
		EnableOffline: fc.EnableOffline,
		EnableRetry:   fc.EnableRetry,
		EnableLogging: fc.EnableLogging,
	}
	if fc.Timeout != nil {
		o.Timeout = Duration(fc.Timeout.Duration)
	}
	if fc.CacheTimeout != nil {
		o.CacheTTL = Duration(fc.CacheTimeout.Duration)
	}
	if fc.Platform != nil {
		o.Platform = PlatformOf(Platform(*fc.Platform))
	}
	return o, nil
}

// FromEnv reads overrides from NESTLINK_* environment variables. Variables
// that are unset or cannot be parsed are left absent.
func FromEnv() Overrides {
	var o Overrides

	if v, ok := lookupEnv("NESTLINK_BASE_URL"); ok {
		o.BaseURL = String(v)
	}
	if v, ok := lookupEnv("NESTLINK_TIMEOUT"); ok {
		if d, err := parseDuration(v); err == nil {
			o.Timeout = Duration(d)
		}
	}
	if v, ok := lookupEnv("NESTLINK_RETRIES"); ok {
		if i, err := strconv.Atoi(v); err == nil {
			o.MaxRetries = Int(i)
		}
	}
	if v, ok := lookupEnv("NESTLINK_API_VERSION"); ok {
		o.Version = String(v)
	}
	if v, ok := lookupEnv("NESTLINK_PLATFORM"); ok {
		o.Platform = PlatformOf(Platform(v))
	}
	if v, ok := lookupEnv("NESTLINK_CACHE_TIMEOUT"); ok {
		if d, err := parseDuration(v); err == nil {
			o.CacheTTL = Duration(d)
		}
	}
	o.EnableCache = getEnvBool("NESTLINK_ENABLE_CACHE")
	o.EnableOffline = getEnvBool("NESTLINK_ENABLE_OFFLINE")
	o.EnableRetry = getEnvBool("NESTLINK_ENABLE_RETRY")
	o.EnableLogging = getEnvBool("NESTLINK_ENABLE_LOGGING")

	return o
}

// Merge layers over on top of base. Fields set in over win.
func Merge(base, over Overrides) Overrides {
	out := base
	if over.BaseURL != nil {
		out.BaseURL = over.BaseURL
	}
	if over.Timeout != nil {
		out.Timeout = over.Timeout
	}
	if over.MaxRetries != nil {
		out.MaxRetries = over.MaxRetries
	}
	if over.Version != nil {
		out.Version = over.Version
	}
	if over.Platform != nil {
		out.Platform = over.Platform
	}
	if over.EnableCache != nil {
		out.EnableCache = over.EnableCache
	}
	if over.CacheTTL != nil {
		out.CacheTTL = over.CacheTTL
	}
	if over.EnableOffline != nil {
		out.EnableOffline = over.EnableOffline
	}
	if over.EnableRetry != nil {
		out.EnableRetry = over.EnableRetry
	}
	if over.EnableLogging != nil {
		out.EnableLogging = over.EnableLogging
	}
	return out
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func getEnvBool(key string) *bool {
	if value, ok := lookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return Bool(b)
		}
	}
	return nil
}

// parseDuration accepts a bare integer as milliseconds, otherwise a duration
// string with units up to days and weeks.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}
	return d, nil
}
