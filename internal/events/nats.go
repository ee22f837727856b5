package events

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// BridgeConfig holds NATS bridge configuration
type BridgeConfig struct {
	// NATS connection settings
	URL      string
	Name     string
	User     string
	Password string

	// SubjectPrefix is prepended to every published event subject, e.g.
	// "nestlink.events" publishes request:start on "nestlink.events.request.start"
	SubjectPrefix string

	// ConnectivitySubject carries online/offline signals from the host
	ConnectivitySubject string
}

// NewBridgeConfigFromEnv creates a new BridgeConfig from environment variables
func NewBridgeConfigFromEnv() *BridgeConfig {
	return &BridgeConfig{
		URL:                 getEnvOrDefault("NATS_URL", nats.DefaultURL),
		Name:                getEnvOrDefault("NATS_CLIENT_NAME", "nestlink"),
		User:                os.Getenv("NATS_USER"),
		Password:            os.Getenv("NATS_PASSWORD"),
		SubjectPrefix:       getEnvOrDefault("NATS_EVENT_PREFIX", "nestlink.events"),
		ConnectivitySubject: getEnvOrDefault("NATS_CONNECTIVITY_SUBJECT", "nestlink.connectivity"),
	}
}

// Envelope is the wire form of an event published over NATS
type Envelope struct {
	Name      Name            `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error,omitempty"`
}

// Encode converts an event to its wire envelope
func Encode(e Event, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Name(), err)
	}
	env := Envelope{
		Name:      e.Name(),
		Timestamp: now,
		Payload:   payload,
	}
	if err := ErrorOf(e); err != nil {
		env.Error = err.Error()
	}
	return json.Marshal(env)
}

// Subject returns the NATS subject an event name publishes to under prefix
func Subject(prefix string, name Name) string {
	return prefix + "." + strings.ReplaceAll(string(name), ":", ".")
}

// NATSBridge mirrors bus events onto NATS and feeds connectivity signals
// from NATS back into the client
type NATSBridge struct {
	nc     *nats.Conn
	config *BridgeConfig
	bus    *Bus
	log    logrus.FieldLogger

	mu   sync.Mutex
	sub  Subscription
	subs []*nats.Subscription
}

// NewNATSBridge connects to NATS
func NewNATSBridge(config *BridgeConfig, bus *Bus, log logrus.FieldLogger) (*NATSBridge, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if bus == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	}

	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBridge{
		nc:     nc,
		config: config,
		bus:    bus,
		log:    log,
	}, nil
}

// PublishEvents starts mirroring every bus event onto NATS
func (b *NATSBridge) PublishEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != 0 {
		return
	}
	b.sub = b.bus.On(Any, b.publish)
}

func (b *NATSBridge) publish(e Event) {
	data, err := Encode(e, time.Now())
	if err != nil {
		b.log.WithError(err).Error("Failed to encode event")
		return
	}
	if err := b.nc.Publish(Subject(b.config.SubjectPrefix, e.Name()), data); err != nil {
		b.log.WithError(err).WithField("event", string(e.Name())).Warn("Failed to publish event")
	}
}

// WatchConnectivity subscribes to the connectivity subject and calls set for
// every signal received. Payloads may be JSON {"online": bool} or one of
// "online", "offline", "true", "false".
func (b *NATSBridge) WatchConnectivity(set func(online bool)) error {
	sub, err := b.nc.Subscribe(b.config.ConnectivitySubject, func(msg *nats.Msg) {
		online, err := ParseConnectivity(msg.Data)
		if err != nil {
			b.log.WithError(err).Warn("Ignoring connectivity signal")
			return
		}
		set(online)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.config.ConnectivitySubject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Stream subscribes to every event published under the prefix, including
// events from other clients
func (b *NATSBridge) Stream(fn func(Envelope)) error {
	sub, err := b.nc.Subscribe(b.config.SubjectPrefix+".>", func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.WithError(err).Warn("Ignoring malformed event envelope")
			return
		}
		fn(env)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// SignalConnectivity publishes a connectivity signal
func (b *NATSBridge) SignalConnectivity(online bool) error {
	data, _ := json.Marshal(map[string]bool{"online": online})
	if err := b.nc.Publish(b.config.ConnectivitySubject, data); err != nil {
		return fmt.Errorf("failed to publish connectivity: %w", err)
	}
	return b.nc.Flush()
}

// Flush waits until published messages are acknowledged by the server
func (b *NATSBridge) Flush() error {
	return b.nc.Flush()
}

// Close detaches from the bus and closes the connection
func (b *NATSBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != 0 {
		b.bus.Off(Any, b.sub)
		b.sub = 0
	}
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil

	if b.nc != nil {
		if err := b.nc.Drain(); err != nil {
			b.nc.Close()
			return err
		}
	}
	return nil
}

// ParseConnectivity decodes a connectivity signal payload
func ParseConnectivity(data []byte) (bool, error) {
	var msg struct {
		Online *bool `json:"online"`
	}
	if err := json.Unmarshal(data, &msg); err == nil && msg.Online != nil {
		return *msg.Online, nil
	}

	switch s := strings.Trim(strings.ToLower(strings.TrimSpace(string(data))), `"`); s {
	case "online":
		return true, nil
	case "offline":
		return false, nil
	default:
		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("unrecognized connectivity payload %q", string(data))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
