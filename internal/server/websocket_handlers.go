package server

import (
	"context"
	"log/slog"

	"giftdesk/internal/featureflags"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// AdminWebSocketHandler joins an authenticated console to the admin room and
// acknowledges with a joined event. Nothing is replayed; consoles pull the
// pending list after the acknowledgement.
func (s *Server) AdminWebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		admin, ok := conn.Locals("admin").(*models.Admin)
		if !ok || admin == nil {
			_ = conn.Close()
			return
		}

		session := notifications.Session{
			Audience: notifications.AudienceAdmin,
			AdminID:  admin.ID,
			Username: admin.Username,
		}
		client, ok := s.registerSocket(conn, session, notifications.AdminRoom)
		if !ok {
			return
		}

		notifications.SendTo(client, models.EventJoined, fiber.Map{
			"room":     notifications.AdminRoom,
			"admin_id": admin.ID,
		})

		go client.WritePump()
		client.ReadPump()
	})
}

// MemberSocketGate checks the owner token before the upgrade so a bad token
// gets a plain HTTP error instead of a socket that closes immediately.
// Requests outside the member_push rollout get 410 and fall back to polling.
func (s *Server) MemberSocketGate(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.approvals.AuthorizeMemberRoom(c.UserContext(), id, c.Query("token")); err != nil {
		return respondError(c, err)
	}
	if !s.flags.Enabled(featureflags.MemberPush, id) {
		return fiber.NewError(fiber.StatusGone, "Live updates are off for this request; poll the status endpoint")
	}
	c.Locals("requestID", id)
	return c.Next()
}

// MemberWebSocketHandler joins a waiting member to their request's room. If
// the request was decided before the socket joined, the outcome is sent
// right away so the member does not wait for the next poll.
func (s *Server) MemberWebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		requestID, ok := conn.Locals("requestID").(uint)
		if !ok || requestID == 0 {
			_ = conn.Close()
			return
		}

		session := notifications.Session{Audience: notifications.AudienceMember, RequestID: requestID}
		room := notifications.MemberRoom(requestID)
		client, ok := s.registerSocket(conn, session, room)
		if !ok {
			return
		}

		notifications.SendTo(client, models.EventJoined, fiber.Map{"room": room})
		if view, err := s.approvals.GetStatus(context.Background(), requestID); err == nil && view.Status.Terminal() {
			notifications.SendTo(client, models.EventRequestResolved, models.RequestResolution{
				ID:     requestID,
				Status: view.Status,
			})
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func (s *Server) registerSocket(conn *websocket.Conn, session notifications.Session, room string) (*notifications.Client, bool) {
	client, err := s.hub.Register(session, conn)
	if err != nil {
		middleware.Logger.Warn("websocket registration refused",
			slog.String("identity", session.Identity()), slog.String("error", err.Error()))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
		_ = conn.Close()
		return nil, false
	}
	if err := s.hub.JoinRoom(client, room); err != nil {
		middleware.Logger.Warn("websocket room join failed",
			slog.String("identity", session.Identity()), slog.String("room", room), slog.String("error", err.Error()))
		s.hub.UnregisterClient(client)
		_ = conn.Close()
		return nil, false
	}
	return client, true
}
