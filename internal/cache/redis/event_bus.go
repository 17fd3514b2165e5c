package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// orderChannelPrefix namespaces the per-order pub/sub channels. The websocket
// hub pattern-subscribes to orderChannelPrefix + "*" to see every order.
const orderChannelPrefix = "orders:"

// OrderChannel returns the pub/sub channel for one order's events.
func OrderChannel(orderID string) string {
	return orderChannelPrefix + orderID
}

// AllOrdersPattern matches every per-order channel.
func AllOrdersPattern() string {
	return orderChannelPrefix + "*"
}

// EventBus is the transient event sink: it broadcasts lifecycle events over
// Redis Pub/Sub for live subscribers. Delivery is fire-and-forget; a message
// published with no subscriber is simply dropped, which is the intended
// semantics for the transient path.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Emit publishes one lifecycle event to the order's channel. The wire format
// is the JSON event payload wrapped with the order id and event type, so
// pattern subscribers can tell orders apart without parsing the channel name.
func (b *EventBus) Emit(ctx context.Context, orderID string, status domain.EventStatus, payload any) error {
	msg, err := json.Marshal(struct {
		OrderID string             `json:"order_id"`
		Status  domain.EventStatus `json:"status"`
		Payload any                `json:"payload"`
	}{
		OrderID: orderID,
		Status:  status,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal %s event for order %s: %w", status, orderID, err)
	}
	return b.Publish(ctx, OrderChannel(orderID), msg)
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of raw payloads. Channels containing glob wildcards use PSUBSCRIBE.
// The subscription closes when the context is cancelled; the returned channel
// is closed at that point as well.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.EventSink = (*EventBus)(nil)
	_ domain.SignalBus = (*EventBus)(nil)
)
