package middleware

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// BlockChecker reports whether a client address is barred from the member
// endpoints.
type BlockChecker interface {
	Blocked(ctx context.Context, ip string) (bool, error)
}

// IPBlacklist rejects requests from blacklisted addresses with 403. Lookup
// failures are logged and the request proceeds.
func IPBlacklist(checker BlockChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if checker == nil {
			return c.Next()
		}
		blocked, err := checker.Blocked(c.UserContext(), c.IP())
		if err != nil {
			Logger.WarnContext(c.UserContext(), "blacklist lookup failed",
				slog.String("ip", c.IP()), slog.String("error", err.Error()))
			return c.Next()
		}
		if blocked {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
				"code":  "FORBIDDEN",
			})
		}
		return c.Next()
	}
}
