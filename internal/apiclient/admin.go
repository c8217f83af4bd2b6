package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"giftdesk/internal/models"
)

// LoginResult is the response to a successful admin login.
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Admin     *models.Admin `json:"admin"`
}

// Resolution is the server's answer to a decision.
type Resolution struct {
	ID         uint                 `json:"id"`
	Status     models.RequestStatus `json:"status"`
	ResolvedAt *time.Time           `json:"resolved_at"`
	ResolvedBy *uint                `json:"resolved_by"`
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out, nil); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Logout revokes the current token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Me returns the signed-in admin with current permissions.
func (c *Client) Me(ctx context.Context) (*models.Admin, error) {
	var out models.Admin
	if err := c.do(ctx, http.MethodGet, "/api/admin/me", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPending returns the pending requests the admin may act on.
func (c *Client) ListPending(ctx context.Context) ([]models.Request, error) {
	var out []models.Request
	if err := c.do(ctx, http.MethodGet, "/api/admin/requests/pending", nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve approves or denies a pending request.
func (c *Client) Resolve(ctx context.Context, id uint, decision models.Decision) (*Resolution, error) {
	var out Resolution
	path := fmt.Sprintf("/api/admin/requests/%d/resolve", id)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"decision": decision}, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ticket issues a single-use WebSocket ticket.
func (c *Client) Ticket(ctx context.Context) (string, error) {
	var out struct {
		Ticket string `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/ws/ticket", nil, &out, nil); err != nil {
		return "", err
	}
	return out.Ticket, nil
}
