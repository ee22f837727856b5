package api

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/birbparty/nestlink/internal/storage"
)

// Config holds the development backend configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// PublicURL is the externally reachable base, used for file URLs
	PublicURL string

	// Session configuration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SweepInterval   time.Duration

	// Request handling
	RequestTimeout  int
	ShutdownTimeout int
	RateLimit       int
	MaxUploadBytes  int

	// Analytics ingestion
	AnalyticsQueueSize int
	AnalyticsWorkers   int

	// Optional Spaces upload storage
	Spaces        storage.SpacesConfig
	SpacesEnabled bool

	// Telemetry configuration
	TelemetryEnabled bool
	MetricsPath      string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnvOrDefault("RATE_LIMIT", "600"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}

	maxUpload, err := strconv.Atoi(getEnvOrDefault("MAX_UPLOAD_BYTES", "10485760"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	queueSize, err := strconv.Atoi(getEnvOrDefault("ANALYTICS_QUEUE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_QUEUE_SIZE: %w", err)
	}

	workers, err := strconv.Atoi(getEnvOrDefault("ANALYTICS_WORKERS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_WORKERS: %w", err)
	}

	accessTTL, err := time.ParseDuration(getEnvOrDefault("ACCESS_TOKEN_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
	}

	refreshTTL, err := time.ParseDuration(getEnvOrDefault("REFRESH_TOKEN_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnvOrDefault("SWEEP_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	spaces, spacesEnabled := storage.NewSpacesConfigFromEnv()

	return &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               port,
		PublicURL:          getEnvOrDefault("PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		SweepInterval:      sweepInterval,
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    shutdownTimeout,
		RateLimit:          rateLimit,
		MaxUploadBytes:     maxUpload,
		AnalyticsQueueSize: queueSize,
		AnalyticsWorkers:   workers,
		Spaces:             spaces,
		SpacesEnabled:      spacesEnabled,
		TelemetryEnabled:   getEnvOrDefault("TELEMETRY_ENABLED", "true") == "true",
		MetricsPath:        getEnvOrDefault("METRICS_PATH", "/metrics"),
	}, nil
}

// DefaultConfig returns the configuration LoadConfig produces with an empty
// environment. Tests use it directly.
func DefaultConfig() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               8080,
		PublicURL:          "http://localhost:8080",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    720 * time.Hour,
		SweepInterval:      5 * time.Minute,
		RequestTimeout:     30,
		ShutdownTimeout:    30,
		RateLimit:          600,
		MaxUploadBytes:     10 << 20,
		AnalyticsQueueSize: 1000,
		AnalyticsWorkers:   2,
		MetricsPath:        "/metrics",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
