package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Broker event scopes.
const (
	ScopeUser   = "user"
	ScopeThread = "thread"
)

// BrokerEvent is a routed realtime event: a target (user or thread), an
// optional excluded sender, and the event itself.
type BrokerEvent struct {
	Scope         string `json:"scope"`
	Target        string `json:"target"`
	ExcludeUserID string `json:"exclude_user_id,omitempty"`
	Event         Event  `json:"event"`
}

// Broker is the pluggable cross-process fan-out backend. The in-memory hub
// alone only reaches connections on this process; a Broker carries events to
// every process holding relevant connections. Publish must be safe for
// concurrent use.
type Broker interface {
	Publish(ctx context.Context, ev BrokerEvent) error
	Close() error
}

// InprocBroker is the single-process backend: publishing applies the event
// to the local hub immediately. It exists so deployments can switch between
// in-process and brokered fan-out behind one interface.
type InprocBroker struct {
	hub *Hub
}

// NewInprocBroker returns a broker that loops events back into hub.
func NewInprocBroker(hub *Hub) *InprocBroker {
	return &InprocBroker{hub: hub}
}

// Publish applies the event to the local hub.
func (b *InprocBroker) Publish(_ context.Context, ev BrokerEvent) error {
	if b.hub == nil {
		return errors.New("inproc broker: no hub attached")
	}
	b.hub.apply(ev)
	return nil
}

// Close is a no-op.
func (b *InprocBroker) Close() error { return nil }

// RedisBroker fans events out through a Redis pub/sub channel. Every process
// subscribes to the same channel and applies received events to its own hub,
// including the publishing process (Redis loops publications back to all
// subscribers), so local delivery happens exactly once via the subscription.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  zerolog.Logger
	pubsub  *redis.PubSub
}

// NewRedisBroker returns a broker publishing to the given channel. Call Run
// on its own goroutine to start applying inbound events to hub.
func NewRedisBroker(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "realtime.RedisBroker").Logger(),
	}
}

// Publish serializes the event and publishes it to the channel.
func (b *RedisBroker) Publish(ctx context.Context, ev BrokerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode broker event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish broker event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and applies inbound events to the local hub
// until ctx is canceled. Undecodable payloads are logged and skipped.
func (b *RedisBroker) Run(ctx context.Context) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)
	defer func() { _ = b.pubsub.Close() }()

	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis broker: subscription closed")
			}
			var ev BrokerEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn().Err(err).Msg("dropping undecodable broker event")
				continue
			}
			b.hub.apply(ev)
		}
	}
}

// Close stops the subscription if Run started one.
func (b *RedisBroker) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
