// Package notifications delivers request lifecycle events to admin consoles
// and waiting members over websocket rooms, fanned out across instances
// through Redis pub/sub.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per admin or per waiting request
	maxConnsPerIdentity = 12
	// Max total connections
	maxTotalConns = 10000

	// AdminRoom is shared by every authenticated console.
	AdminRoom = "admin"

	memberRoomPrefix = "request:"
)

var (
	ErrServerLimit   = errors.New("server connection limit reached")
	ErrIdentityLimit = errors.New("connection limit reached for this session")
	ErrNotRegistered = errors.New("client is not registered")
)

// MemberRoom is the room a member waiting on request id listens in.
func MemberRoom(id uint) string {
	return memberRoomPrefix + strconv.FormatUint(uint64(id), 10)
}

// ParseMemberRoom returns the request id of a member room key.
func ParseMemberRoom(room string) (uint, bool) {
	if !strings.HasPrefix(room, memberRoomPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(room, memberRoomPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Hub tracks live sockets and the rooms they joined. Leaving the hub drops a
// client from every room; nothing is queued for absent clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	totalConns int
	presence   *Presence
	closed     bool
}

// NewHub creates a hub. presence may be nil.
func NewHub(presence *Presence) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: presence,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "approval hub" }

// Presence returns the admin presence tracker, if any.
func (h *Hub) Presence() *Presence { return h.presence }

// Register adds a connection for session. Returns an error if limits are exceeded.
func (h *Hub) Register(session Session, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.closed || h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerLimit
	}

	key := session.Identity()
	m, ok := h.clients[key]
	if !ok {
		m = make(map[*Client]struct{})
		h.clients[key] = m
	}
	if len(m) >= maxConnsPerIdentity {
		h.mu.Unlock()
		return nil, ErrIdentityLimit
	}

	client := NewClient(h, conn, session)
	if session.Audience == AudienceAdmin && h.presence != nil {
		client.OnActivity = func(s Session) {
			h.presence.Touch(context.Background(), s.AdminID)
		}
	}

	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	middleware.ActiveWebSockets.WithLabelValues(string(session.Audience)).Inc()
	if session.Audience == AudienceAdmin && h.presence != nil {
		h.presence.Register(context.Background(), session.AdminID)
	}
	return client, nil
}

// JoinRoom associates a registered client with room.
func (h *Hub) JoinRoom(client *Client, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.Session.Identity()][client]; !ok {
		return ErrNotRegistered
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	if _, already := members[client]; already {
		return nil
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
	observability.WebSocketRoomConnections.WithLabelValues(observability.RoomLabel(room)).Inc()
	return nil
}

// LeaveRoom removes client from room; unknown memberships are ignored.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) leaveLocked(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, in := members[client]; !in {
		return
	}
	delete(members, client)
	delete(client.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	observability.WebSocketRoomConnections.WithLabelValues(observability.RoomLabel(room)).Dec()
}

// EmitLocal delivers data to every client in room on this instance and
// returns how many accepted it. Delivery is at most once per client.
func (h *Hub) EmitLocal(room string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if c.TrySend(data) {
			delivered++
		}
	}
	return delivered
}

// RoomSize reports how many local clients are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// UnregisterClient drops client from the hub and every room it joined.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := h.removeLocked(client)
	h.mu.Unlock()

	if !removed {
		return
	}
	middleware.ActiveWebSockets.WithLabelValues(string(client.Session.Audience)).Dec()
	if client.Session.Audience == AudienceAdmin && h.presence != nil {
		h.presence.Unregister(context.Background(), client.Session.AdminID)
	}
}

func (h *Hub) removeLocked(client *Client) bool {
	key := client.Session.Identity()
	m, ok := h.clients[key]
	if !ok {
		return false
	}
	if _, exists := m[client]; !exists {
		return false
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.clients, key)
	}
	h.totalConns--
	client.close()
	return true
}

// StartWiring subscribes the hub to the notifier so events published by any
// instance reach this instance's room members.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartRoomSubscriber(ctx, func(room string, payload []byte) {
		h.EmitLocal(room, payload)
	})
}

// Shutdown tells every client the server is going away and closes their
// outbound queues so the write pumps send a close frame.
func (h *Hub) Shutdown(_ context.Context) error {
	notice := mustEnvelope(models.EventServerShutdown, map[string]string{"reason": "server shutting down"})

	h.mu.Lock()
	h.closed = true
	var clients []*Client
	for _, m := range h.clients {
		for c := range m {
			clients = append(clients, c)
		}
	}
	for _, c := range clients {
		c.TrySend(notice)
		h.removeLocked(c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		middleware.ActiveWebSockets.WithLabelValues(string(c.Session.Audience)).Dec()
	}
	if h.presence != nil {
		h.presence.Stop()
	}
	middleware.Logger.Info("websocket hub shut down", slog.Int("clients", len(clients)))
	return nil
}
