// Package bootstrap wires the process-level runtime shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"giftdesk/internal/cache"
	"giftdesk/internal/config"
	"giftdesk/internal/database"
	"giftdesk/internal/middleware"
	"giftdesk/internal/repository"
	"giftdesk/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema opens the database without applying the schema.
	SkipSchema bool
}

// InitRuntime connects to the database and Redis and, in development, ensures
// a bootstrap super admin exists. The Redis client is nil when Redis is
// unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: !opts.SkipSchema})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	rdb := cache.GetClient()

	if err := ensureDevBootstrapAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}
	return db, rdb, nil
}

func ensureDevBootstrapAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}
	if cfg.DevAdminPassword == "" {
		return fmt.Errorf("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	if username == "" {
		username = "desk_root"
	}

	admins := service.NewAdminService(repository.NewAdminRepository(db))
	created, err := admins.EnsureBootstrapAdmin(ctx, username, cfg.DevAdminPassword)
	if err != nil {
		return err
	}
	if created {
		middleware.Logger.Info("development super admin created", slog.String("username", username))
	}
	return nil
}
