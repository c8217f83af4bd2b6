package server

import (
	"net/url"

	"giftdesk/internal/models"
	"giftdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListPendingRequests handles GET /api/admin/requests/pending
func (s *Server) ListPendingRequests(c *fiber.Ctx) error {
	requests, err := s.approvals.ListPending(c.UserContext(), currentAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

// ListRequestHistory handles GET /api/admin/requests?status=
func (s *Server) ListRequestHistory(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	status := models.RequestStatus(c.Query("status", string(models.RequestStatusApproved)))
	requests, err := s.approvals.ListHistory(c.UserContext(), currentAdmin(c), status, page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

// ResolveRequest handles POST /api/admin/requests/:id/resolve
func (s *Server) ResolveRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body struct {
		Decision models.Decision `json:"decision"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.approvals.ResolveRequest(c.UserContext(), id, body.Decision, currentAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"id":          req.ID,
		"status":      req.Status,
		"resolved_at": req.ResolvedAt,
		"resolved_by": req.ResolvedBy,
	})
}

// GetOnlineAdmins handles GET /api/admin/online
func (s *Server) GetOnlineAdmins(c *fiber.Ctx) error {
	ids := []uint{}
	if p := s.hub.Presence(); p != nil {
		ids = p.OnlineAdminIDs(c.UserContext())
	}
	return c.JSON(fiber.Map{"admin_ids": ids})
}

// ListBlacklist handles GET /api/admin/blacklist
func (s *Server) ListBlacklist(c *fiber.Ctx) error {
	entries, err := s.blacklist.List(c.UserContext(), currentAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(entries)
}

// AddBlacklistEntry handles POST /api/admin/blacklist
func (s *Server) AddBlacklistEntry(c *fiber.Ctx) error {
	var body struct {
		IP     string `json:"ip"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	entry, err := s.blacklist.Add(c.UserContext(), currentAdmin(c), body.IP, body.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// RemoveBlacklistEntry handles DELETE /api/admin/blacklist/:ip
func (s *Server) RemoveBlacklistEntry(c *fiber.Ctx) error {
	ip, err := url.PathUnescape(c.Params("ip"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid IP address"))
	}
	if err := s.blacklist.Remove(c.UserContext(), currentAdmin(c), ip); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListAdmins handles GET /api/admin/admins
func (s *Server) ListAdmins(c *fiber.Ctx) error {
	admins, err := s.admins.List(c.UserContext(), currentAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(admins)
}

// CreateAdmin handles POST /api/admin/admins
func (s *Server) CreateAdmin(c *fiber.Ctx) error {
	var body struct {
		Username    string           `json:"username"`
		Password    string           `json:"password"`
		Role        models.AdminRole `json:"role"`
		Permissions []models.Section `json:"permissions"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	admin, err := s.admins.Create(c.UserContext(), currentAdmin(c), service.CreateAdminInput{
		Username:    body.Username,
		Password:    body.Password,
		Role:        body.Role,
		Permissions: body.Permissions,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(admin)
}

// UpdateAdminPermissions handles PUT /api/admin/admins/:id/permissions
func (s *Server) UpdateAdminPermissions(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var body struct {
		Role        models.AdminRole `json:"role"`
		Permissions []models.Section `json:"permissions"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	admin, err := s.admins.SetPermissions(c.UserContext(), currentAdmin(c), id, body.Role, body.Permissions)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(admin)
}
