package server

import (
	"giftdesk/internal/models"
	"giftdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// requestTokenHeader carries the owner token on member calls.
const requestTokenHeader = "X-Request-Token"

// CreateRequest handles POST /api/requests
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var body struct {
		Kind             models.RequestKind `json:"kind"`
		MemberIdentifier string             `json:"member_identifier"`
		DeviceLabel      string             `json:"device_label"`
		Code             string             `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.approvals.CreateRequest(c.UserContext(), service.CreateRequestInput{
		Kind:             body.Kind,
		MemberIdentifier: body.MemberIdentifier,
		DeviceLabel:      body.DeviceLabel,
		Code:             body.Code,
		ClientIP:         c.IP(),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     req.ID,
		"kind":   req.Kind,
		"status": req.Status,
		"token":  req.OwnerToken,
	})
}

// GetRequestStatus handles GET /api/requests/:id/status
func (s *Server) GetRequestStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	view, err := s.approvals.GetStatus(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// CancelRequest handles POST /api/requests/:id/cancel
func (s *Server) CancelRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.approvals.CancelRequest(c.UserContext(), id, c.Get(requestTokenHeader))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"id": req.ID, "status": req.Status})
}
