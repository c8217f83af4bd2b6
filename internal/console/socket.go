package console

import (
	"context"
	"fmt"

	"giftdesk/internal/apiclient"
)

// TicketAPI issues socket tickets for the signed-in admin.
type TicketAPI interface {
	Ticket(ctx context.Context) (string, error)
	AdminSocketURL(ticket string) (string, error)
}

// SocketClient connects to the admin room with a fresh single-use ticket on
// every dial.
type SocketClient struct {
	api TicketAPI
}

// NewSocketClient returns a socket client using api for tickets.
func NewSocketClient(api TicketAPI) *SocketClient {
	return &SocketClient{api: api}
}

// Connect dials the admin room. The returned channel closes on disconnect.
func (s *SocketClient) Connect(ctx context.Context) (<-chan apiclient.Event, error) {
	ticket, err := s.api.Ticket(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue ticket: %w", err)
	}
	u, err := s.api.AdminSocketURL(ticket)
	if err != nil {
		return nil, err
	}
	return apiclient.Stream(ctx, u, nil)
}
