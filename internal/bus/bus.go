package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ualgo/engine/internal/metrics"
)

const (
	defaultPrefix     = "ualgo."
	maxRecentMessages = 1000
	defaultPriority   = 5
)

// Message is the bus envelope exchanged between agents
type Message struct {
	ID        uuid.UUID      `json:"id"`
	Sender    string         `json:"sender"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  int            `json:"priority"` // 0-9, higher = more important
}

// Handler is a callback for received messages
type Handler func(msg *Message)

// Config configures the message bus
type Config struct {
	// URL of an external NATS server. Empty starts an embedded
	// in-process server.
	URL    string
	Prefix string
}

// Bus is the in-process pub/sub fabric. It is backed by NATS so
// per-subscription delivery order matches publish order, and keeps a
// bounded log of recent messages for inspection.
type Bus struct {
	nc     *nats.Conn
	ns     *natsserver.Server // non-nil when embedded
	prefix string

	mu     sync.Mutex
	recent []Message
}

// New creates a message bus. With no external URL configured it boots
// an embedded NATS server on an ephemeral port.
func New(cfg Config) (*Bus, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	var ns *natsserver.Server
	url := cfg.URL
	if url == "" {
		opts := &natsserver.Options{
			Host:   "127.0.0.1",
			Port:   -1, // random port
			NoLog:  true,
			NoSigs: true,
		}
		var err error
		ns, err = natsserver.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server not ready")
		}
		url = ns.ClientURL()
	}

	nc, err := nats.Connect(
		url,
		nats.Name("ualgo-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		if ns != nil {
			ns.Shutdown()
		}
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("url", url).
		Str("prefix", cfg.Prefix).
		Bool("embedded", ns != nil).
		Msg("MessageBus initialized")

	return &Bus{
		nc:     nc,
		ns:     ns,
		prefix: cfg.Prefix,
	}, nil
}

// Publish sends a message on its topic and records it in the log
func (b *Bus) Publish(msg *Message) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("message bus not connected")
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Priority == 0 {
		msg.Priority = defaultPriority
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	subject := b.prefix + msg.Topic
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	b.record(msg)
	metrics.BusMessagesPublished.Inc()

	log.Debug().
		Str("message_id", msg.ID.String()).
		Str("sender", msg.Sender).
		Str("topic", msg.Topic).
		Msg("Published message")

	return nil
}

// Broadcast publishes a payload from a named sender on a topic
func (b *Bus) Broadcast(sender, topic string, payload map[string]any) error {
	return b.Publish(&Message{
		Sender:  sender,
		Topic:   topic,
		Payload: payload,
	})
}

// Subscribe registers a handler for one topic. Handler panics are
// recovered so a failing subscriber never stalls delivery to siblings.
func (b *Bus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	subject := b.prefix + topic

	sub, err := b.nc.Subscribe(subject, b.wrapHandler(topic, handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Str("topic", topic).Msg("Subscribed to messages")

	return &Subscription{sub: sub, topic: topic}, nil
}

// SubscribeAll registers a handler for every topic on the bus
// (WebSocket fan-out uses this).
func (b *Bus) SubscribeAll(handler Handler) (*Subscription, error) {
	subject := b.prefix + ">"

	sub, err := b.nc.Subscribe(subject, b.wrapHandler(">", handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to all topics: %w", err)
	}

	log.Info().Msg("Subscribed to all topics")

	return &Subscription{sub: sub, topic: ">"}, nil
}

func (b *Bus) wrapHandler(topic string, handler Handler) func(*nats.Msg) {
	return func(natsMsg *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(natsMsg.Data, &msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Failed to unmarshal message")
			return
		}

		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("message_id", msg.ID.String()).
					Str("topic", msg.Topic).
					Msg("Message handler panicked")
			}
		}()

		handler(&msg)
	}
}

// Recent returns up to limit recorded messages, oldest first,
// optionally filtered by topic.
func (b *Bus) Recent(topic string, limit int) []Message {
	if limit <= 0 || limit > maxRecentMessages {
		limit = maxRecentMessages
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []Message
	for _, m := range b.recent {
		if topic == "" || m.Topic == topic {
			matched = append(matched, m)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	out := make([]Message, len(matched))
	copy(out, matched)
	return out
}

func (b *Bus) record(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, *msg)
	if len(b.recent) > maxRecentMessages {
		b.recent = b.recent[len(b.recent)-maxRecentMessages:]
	}
}

// Flush waits until all published messages reached the server
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Stats returns bus statistics
func (b *Bus) Stats() map[string]any {
	stats := make(map[string]any)
	if b.nc != nil {
		stats["connected"] = b.nc.IsConnected()
		stats["status"] = b.nc.Status().String()
		stats["in_msgs"] = b.nc.Stats().InMsgs
		stats["out_msgs"] = b.nc.Stats().OutMsgs
		stats["reconnects"] = b.nc.Stats().Reconnects
	}
	stats["embedded"] = b.ns != nil

	b.mu.Lock()
	stats["recent_messages"] = len(b.recent)
	b.mu.Unlock()

	return stats
}

// Close closes the connection and shuts down the embedded server
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.ns != nil {
		b.ns.Shutdown()
	}
	log.Info().Msg("MessageBus closed")
}

// Subscription represents an active subscription
type Subscription struct {
	sub   *nats.Subscription
	topic string
}

// Unsubscribe cancels the subscription
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	log.Info().Str("topic", s.topic).Msg("Unsubscribed from messages")
	return nil
}

// IsValid reports whether the subscription is still active
func (s *Subscription) IsValid() bool {
	return s.sub.IsValid()
}
