package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/observability"
)

// Channel is the room-addressed event transport used by the services.
type Channel struct {
	hub      *Hub
	notifier *Notifier
}

// NewChannel returns a channel delivering through notifier when Redis is
// wired and straight to hub otherwise.
func NewChannel(hub *Hub, notifier *Notifier) *Channel {
	return &Channel{hub: hub, notifier: notifier}
}

// Emit wraps payload in the {"type","payload"} envelope and delivers it to
// room. Delivery is best effort: when the Redis publish fails the event is
// still delivered to local sockets and a transport error is returned for
// logging.
func (c *Channel) Emit(ctx context.Context, room, event string, payload any) (err error) {
	ctx, span := observability.StartBroadcastSpan(ctx, room, event)
	defer func() { observability.EndSpan(span, err) }()

	data, err := json.Marshal(models.Event{Type: event, Payload: payload})
	if err != nil {
		return models.NewTransportError(room, err)
	}
	observability.WebSocketEventsTotal.WithLabelValues(event).Inc()

	if c.notifier.Enabled() {
		perr := c.notifier.PublishRoom(ctx, room, data)
		if perr == nil {
			return nil
		}
		c.hub.EmitLocal(room, data)
		observability.BroadcastFailures.WithLabelValues(observability.RoomLabel(room)).Inc()
		middleware.Logger.WarnContext(ctx, "room publish failed, delivered locally only",
			slog.String("room", room), slog.String("event", event), slog.String("error", perr.Error()))
		return models.NewTransportError(room, perr)
	}

	c.hub.EmitLocal(room, data)
	return nil
}

// SendTo delivers one event to a single client, used for join
// acknowledgements.
func SendTo(client *Client, event string, payload any) bool {
	return client.TrySend(mustEnvelope(event, payload))
}

func mustEnvelope(event string, payload any) []byte {
	data, err := json.Marshal(models.Event{Type: event, Payload: payload})
	if err != nil {
		data, _ = json.Marshal(models.Event{Type: event})
	}
	return data
}
