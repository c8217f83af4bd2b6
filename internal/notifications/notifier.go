package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"giftdesk/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "rooms:"

// RoomChannel derives the Redis channel name for a room.
func RoomChannel(room string) string {
	return roomChannelPrefix + room
}

// Notifier publishes room payloads into Redis so every instance can deliver
// them to its local sockets.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is wired.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishRoom sends payload to the room's channel.
func (n *Notifier) PublishRoom(ctx context.Context, room string, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, RoomChannel(room), payload).Err()
}

// StartRoomSubscriber subscribes to every room channel and calls onMessage for
// each payload until ctx is done. It returns once the subscription is
// confirmed so publishes issued afterwards are not missed.
func (n *Notifier) StartRoomSubscriber(ctx context.Context, onMessage func(room string, payload []byte)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to room channels: %w", err)
	}
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
							middleware.Logger.Error("panic in room subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(strings.TrimPrefix(msg.Channel, roomChannelPrefix), []byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}
