package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"giftdesk/internal/models"
)

// RequestTokenHeader carries the owner token on member calls.
const RequestTokenHeader = "X-Request-Token"

// SubmitInput is a member's login or verification submission.
type SubmitInput struct {
	Kind             models.RequestKind `json:"kind"`
	MemberIdentifier string             `json:"member_identifier"`
	DeviceLabel      string             `json:"device_label,omitempty"`
	Code             string             `json:"code,omitempty"`
}

// Submitted identifies a created request. Token proves ownership for
// cancellation and the member socket.
type Submitted struct {
	ID     uint                 `json:"id"`
	Kind   models.RequestKind   `json:"kind"`
	Status models.RequestStatus `json:"status"`
	Token  string               `json:"token"`
}

// Status is the member-facing view of a request.
type Status struct {
	ID         uint                 `json:"id"`
	Status     models.RequestStatus `json:"status"`
	ResolvedAt *time.Time           `json:"resolved_at,omitempty"`
}

// Submit creates a pending request.
func (c *Client) Submit(ctx context.Context, in SubmitInput) (*Submitted, error) {
	var out Submitted
	if err := c.do(ctx, http.MethodPost, "/api/requests", in, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status polls a request's status.
func (c *Client) Status(ctx context.Context, id uint) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/requests/%d/status", id), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel withdraws a pending request.
func (c *Client) Cancel(ctx context.Context, id uint, token string) error {
	path := fmt.Sprintf("/api/requests/%d/cancel", id)
	return c.do(ctx, http.MethodPost, path, nil, nil, map[string]string{RequestTokenHeader: token})
}

// MemberSocketURL is the member room socket for request id.
func (c *Client) MemberSocketURL(id uint, token string) (string, error) {
	return c.SocketURL(fmt.Sprintf("/api/ws/requests/%d", id), url.Values{"token": {token}})
}

// AdminSocketURL is the admin room socket authenticated by ticket.
func (c *Client) AdminSocketURL(ticket string) (string, error) {
	return c.SocketURL("/api/ws/admin", url.Values{"ticket": {ticket}})
}
