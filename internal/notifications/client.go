package notifications

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"giftdesk/internal/middleware"
	"giftdesk/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBufferSize = 256
)

// Audience separates operator sockets from member wait sockets.
type Audience string

const (
	AudienceAdmin  Audience = "admin"
	AudienceMember Audience = "member"
)

// Session is the identity a socket was authenticated as. Admin sessions carry
// the operator; member sessions carry the request they wait on.
type Session struct {
	Audience  Audience
	AdminID   uint
	Username  string
	RequestID uint
}

// Identity keys connection limits: one bucket per admin or per request.
func (s Session) Identity() string {
	if s.Audience == AudienceAdmin {
		return fmt.Sprintf("admin:%d", s.AdminID)
	}
	return fmt.Sprintf("member:%d", s.RequestID)
}

// WSHub is the hub side of a client's lifecycle.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub WSHub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	Session Session

	// OnActivity is called for every inbound frame.
	OnActivity func(Session)

	// rooms is guarded by the hub's lock.
	rooms map[string]struct{}

	closeOnce sync.Once
}

// NewClient creates a new Client instance
func NewClient(hub WSHub, conn *websocket.Conn, session Session) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		Session: session,
		Send:    make(chan []byte, sendBufferSize),
		rooms:   make(map[string]struct{}),
	}
}

// ReadPump consumes inbound frames until the peer goes away, then
// unregisters the client. Members and consoles only listen, so frame
// contents are ignored beyond keeping the connection alive.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Warn("websocket read failed",
					slog.String("identity", c.Session.Identity()),
					slog.String("error", err.Error()))
			}
			return
		}
		if c.OnActivity != nil {
			c.OnActivity(c.Session)
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. A full buffer drops the message
// and the oldest queued frame, and queues a messages_dropped notice in its
// place so the client re-fetches.
func (c *Client) TrySend(message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
		middleware.Logger.Warn("websocket buffer full, dropped message",
			slog.String("identity", c.Session.Identity()),
			slog.String("hub", c.Hub.Name()))

		select {
		case <-c.Send:
		default:
		}
		select {
		case c.Send <- dropNotice:
		default:
		}
		return false
	}
}

var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}
