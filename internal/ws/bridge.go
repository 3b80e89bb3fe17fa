package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"messaging-service/internal/models"
)

const bridgeChannel = "chat.room_events"

// RedisBridge distributes room events across service instances over a
// single pub/sub channel. Each event carries its conversation id, so
// every instance can route it to its own local rooms.
type RedisBridge struct {
	client *redis.Client
	sub    *redis.PubSub
}

// NewRedisBridge connects to redis and starts relaying incoming events
// into hub's local rooms.
func NewRedisBridge(ctx context.Context, url string, hub *Hub) (*RedisBridge, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	sub := client.Subscribe(ctx, bridgeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		client.Close()
		return nil, err
	}

	b := &RedisBridge{client: client, sub: sub}
	go b.relay(hub)
	return b, nil
}

func (b *RedisBridge) relay(hub *Hub) {
	for msg := range b.sub.Channel() {
		var ev models.RoomEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("bridge: malformed room event: %v", err)
			continue
		}
		hub.DeliverLocal(ev)
	}
}

// Publish sends a room event to every subscribed instance.
func (b *RedisBridge) Publish(ctx context.Context, ev models.RoomEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, bridgeChannel, payload).Err()
}

// Close stops the subscription and releases the connection.
func (b *RedisBridge) Close() error {
	if b.sub != nil {
		_ = b.sub.Close()
	}
	return b.client.Close()
}
