// Package redis implements bus.PubSub over a Redis Pub/Sub channel, using
// the same subscribe-and-dispatch shape as a cache invalidation listener,
// generalized from a single int64 app id to the full Event envelope.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	goredis "github.com/redis/go-redis/v9"

	"cedrus/internal/bus"
)

const channel = "cedrus:events"

// Bus is the Redis-backed bus.PubSub implementation.
type Bus struct {
	rdb      *goredis.Client
	senderID string
	pubsub   *goredis.PubSub
}

// New builds a Bus over rdb; Subscribe joins the shared events channel.
// senderID is stamped onto every event this node publishes.
func New(rdb *goredis.Client, senderID string) *Bus {
	return &Bus{rdb: rdb, senderID: senderID}
}

func (b *Bus) Publish(ctx context.Context, e bus.Event) error {
	e.SenderID = b.senderID
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("bus/redis: encode event: %w", err)
	}
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan bus.Event, error) {
	b.pubsub = b.rdb.Subscribe(ctx, channel)
	raw := b.pubsub.Channel()

	out := make(chan bus.Event)
	go func() {
		defer close(out)
		for msg := range raw {
			var e bus.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Printf("bus/redis: dropping malformed event: %v", err)
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
