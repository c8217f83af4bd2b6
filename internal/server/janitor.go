package server

import (
	"context"
	"log/slog"
	"time"

	"giftdesk/internal/middleware"
)

// runExpiryJanitor cancels requests that stayed pending longer than ttl,
// sweeping every interval until ctx is done.
func (s *Server) runExpiryJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.approvals.ExpireStale(ctx, ttl); err != nil && ctx.Err() == nil {
				middleware.Logger.ErrorContext(ctx, "stale request sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
