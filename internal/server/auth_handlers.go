package server

import (
	"log/slog"
	"time"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Username == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username and password are required"))
	}

	admin, err := s.admins.Authenticate(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	token, claims, err := middleware.IssueAdminToken(s.config.JWTSecret, admin.ID, admin.Username, s.config.TokenTTL())
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}

	middleware.Logger.InfoContext(middleware.WithAdminID(c.UserContext(), admin.ID), "admin signed in")
	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": claims.ExpiresAt,
		"admin":      admin,
	})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals("jti").(string)
	expiresAt, _ := c.Locals("tokenExpiresAt").(time.Time)

	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRedisUnavailable))
	}
	if err := s.revoke(c, jti, expiresAt); err != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "token revocation failed", slog.String("error", err.Error()))
		return respondError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// IssueWSTicket handles POST /api/ws/ticket. Browsers can not set headers on
// socket upgrades, so they trade their bearer token for a short single-use
// ticket passed as a query parameter.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRedisUnavailable))
	}
	adminID, _ := c.Locals("adminID").(uint)
	ticket, err := s.issueTicket(c, adminID)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// GetMe handles GET /api/admin/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	return c.JSON(currentAdmin(c))
}
