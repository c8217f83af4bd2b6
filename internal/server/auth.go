package server

import (
	"strconv"
	"strings"
	"time"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	wsTicketPrefix     = "ws_ticket:"
	wsTicketTTL        = 30 * time.Second
	revokedTokenPrefix = "blacklist:"
)

// AuthRequired authenticates an admin by single-use WebSocket ticket (socket
// upgrades only) or by bearer token, then loads the account so handlers see
// its current role, permissions and disabled flag. A ticket on any other
// request is ignored, so a ticket can never mint another one.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		acceptsTicket := strings.HasPrefix(c.Path(), "/api/ws/") && websocket.IsWebSocketUpgrade(c)

		var adminID uint
		if ticket := c.Query("ticket"); ticket != "" && acceptsTicket {
			id, ok := s.consumeTicket(c, ticket)
			if !ok {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			adminID = id
		} else {
			tokenString := middleware.BearerToken(c)
			if tokenString == "" {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Authorization required"))
			}
			claims, err := middleware.ParseAdminToken(s.config.JWTSecret, tokenString)
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired token"))
			}
			if s.isRevoked(c, claims.JTI) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
			adminID = claims.AdminID
			c.Locals("jti", claims.JTI)
			c.Locals("tokenExpiresAt", claims.ExpiresAt)
		}

		admin, err := s.admins.Get(ctx, adminID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Account no longer exists"))
			}
			return respondError(c, err)
		}
		if admin.Disabled {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Account is disabled"))
		}

		c.Locals("adminID", admin.ID)
		c.Locals("admin", admin)
		c.SetUserContext(middleware.WithAdminID(ctx, admin.ID))
		return c.Next()
	}
}

func (s *Server) consumeTicket(c *fiber.Ctx, ticket string) (uint, bool) {
	if s.redis == nil {
		return 0, false
	}
	raw, err := s.redis.GetDel(c.UserContext(), wsTicketPrefix+ticket).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// isRevoked reports whether the token id was revoked by logout. A Redis
// failure is treated as not revoked.
func (s *Server) isRevoked(c *fiber.Ctx, jti string) bool {
	if jti == "" || s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(c.UserContext(), revokedTokenPrefix+jti).Result()
	return err == nil && n > 0
}

func (s *Server) issueTicket(c *fiber.Ctx, adminID uint) (string, error) {
	ticket := uuid.NewString()
	err := s.redis.Set(c.UserContext(), wsTicketPrefix+ticket,
		strconv.FormatUint(uint64(adminID), 10), wsTicketTTL).Err()
	if err != nil {
		return "", err
	}
	return ticket, nil
}

func (s *Server) revoke(c *fiber.Ctx, jti string, until time.Time) error {
	ttl := time.Until(until)
	if jti == "" || ttl <= 0 {
		return nil
	}
	return s.redis.Set(c.UserContext(), revokedTokenPrefix+jti, "1", ttl).Err()
}

