package server

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes push events into per-profile Redis channels so multiple
// server instances can fan them out. Nil-safe: with no Redis client every
// operation is a no-op and delivery stays in-process through the hub.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends an event payload to a profile's channel.
func (n *Notifier) PublishUser(ctx context.Context, profileID string, payload string) error {
	if n.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("push:user:%s", profileID)
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// StartPatternSubscriber subscribes to pattern `push:user:*` and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "push:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in PatternSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// StartWiring connects the Notifier to the hub: it subscribes to the Redis
// pattern and forwards payloads to the matching profile's connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		profileID, ok := strings.CutPrefix(channel, "push:user:")
		if !ok || profileID == "" {
			log.Printf("invalid push channel: %s", channel)
			return
		}
		h.Broadcast(profileID, []byte(payload))
	})
}
