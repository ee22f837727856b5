package sdk

import (
	"github.com/birbparty/nestlink/internal/cache"
	"github.com/birbparty/nestlink/internal/config"
	"github.com/birbparty/nestlink/internal/events"
	"github.com/birbparty/nestlink/internal/queue"
)

// Configuration types. The resolved Config never changes after NewClient.
type (
	Config    = config.Config
	Overrides = config.Overrides
	Platform  = config.Platform
)

// Known platforms
const (
	PlatformWeb     = config.PlatformWeb
	PlatformMobile  = config.PlatformMobile
	PlatformDesktop = config.PlatformDesktop
	PlatformCLI     = config.PlatformCLI
)

// DefaultConfig returns the configuration used when no overrides are set
func DefaultConfig() Config {
	return config.Defaults()
}

// ResolveConfig merges o over the defaults. Invalid values fall back to the
// default silently; it never fails.
func ResolveConfig(o Overrides) Config {
	return config.Resolve(o)
}

// LoadConfigFile reads YAML overrides from path
func LoadConfigFile(path string) (Overrides, error) {
	return config.LoadFile(path)
}

// Pointer helpers for building Overrides inline
var (
	String     = config.String
	Int        = config.Int
	Bool       = config.Bool
	Duration   = config.Duration
	Millis     = config.Millis
	PlatformOf = config.PlatformOf
)

// Pluggable storage. CacheStore backs GET response caching and QueueStore
// backs the offline queue.
type (
	CacheStore     = cache.Store
	CacheEntry     = cache.Entry
	QueueStore     = queue.Store
	QueuedRequest  = queue.Request
	DrainResult    = queue.DrainResult
	EventName      = events.Name
	Event          = events.Event
	Subscription   = events.Subscription
	NetworkOnline  = events.NetworkOnline
	NetworkOffline = events.NetworkOffline
	RequestStart   = events.RequestStart
	RequestSuccess = events.RequestSuccess
	RequestError   = events.RequestError
	QueueSuccess   = events.QueueSuccess
	QueueFailed    = events.QueueFailed
)

// Event names
const (
	EventAny            = events.Any
	EventNetworkOnline  = events.NameNetworkOnline
	EventNetworkOffline = events.NameNetworkOffline
	EventRequestStart   = events.NameRequestStart
	EventRequestSuccess = events.NameRequestSuccess
	EventRequestError   = events.NameRequestError
	EventQueueSuccess   = events.NameQueueSuccess
	EventQueueFailed    = events.NameQueueFailed
)

// NewMemoryCache returns an in-process cache store. maxEntries <= 0 means
// unbounded.
func NewMemoryCache(maxEntries int) CacheStore {
	if maxEntries > 0 {
		return cache.NewMemoryStore(cache.WithMaxEntries(maxEntries))
	}
	return cache.NewMemoryStore()
}

// NewMemoryQueue returns an in-process queue store
func NewMemoryQueue() QueueStore {
	return queue.NewMemoryStore()
}
