package service

import (
	"context"
	"log/slog"
	"strings"

	"giftdesk/internal/cache"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/repository"
	"giftdesk/internal/validation"
)

// BlacklistService manages blocked member addresses and answers lookups for
// the member route gate.
type BlacklistService struct {
	repo  repository.BlacklistRepository
	cache *cache.IPBlockCache
}

// NewBlacklistService returns a new BlacklistService. A nil cache sends every
// lookup to the database.
func NewBlacklistService(repo repository.BlacklistRepository, c *cache.IPBlockCache) *BlacklistService {
	return &BlacklistService{repo: repo, cache: c}
}

// Blocked reports whether ip is blacklisted.
func (s *BlacklistService) Blocked(ctx context.Context, ip string) (bool, error) {
	return s.cache.Blocked(ctx, ip, s.repo.Exists)
}

// List returns every entry, newest first.
func (s *BlacklistService) List(ctx context.Context, actor *models.Admin) ([]models.BlacklistedIP, error) {
	if !actor.CanAccess(models.SectionBlacklist) {
		return nil, models.NewForbiddenError()
	}
	return s.repo.List(ctx)
}

// Add blocks ip.
func (s *BlacklistService) Add(ctx context.Context, actor *models.Admin, ip, reason string) (*models.BlacklistedIP, error) {
	if !actor.CanAccess(models.SectionBlacklist) {
		return nil, models.NewForbiddenError()
	}
	ip = strings.TrimSpace(ip)
	if err := validation.ValidateIP(ip); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	entry := &models.BlacklistedIP{IP: ip, Reason: strings.TrimSpace(reason), CreatedBy: actor.ID}
	if err := s.repo.Add(ctx, entry); err != nil {
		return nil, err
	}
	s.forget(ctx, ip)
	middleware.Logger.InfoContext(ctx, "ip blacklisted", slog.String("ip", ip), slog.Uint64("admin_id", uint64(actor.ID)))
	return entry, nil
}

// Remove unblocks ip.
func (s *BlacklistService) Remove(ctx context.Context, actor *models.Admin, ip string) error {
	if !actor.CanAccess(models.SectionBlacklist) {
		return models.NewForbiddenError()
	}
	ip = strings.TrimSpace(ip)
	if err := s.repo.Remove(ctx, ip); err != nil {
		return err
	}
	s.forget(ctx, ip)
	return nil
}

func (s *BlacklistService) forget(ctx context.Context, ip string) {
	if err := s.cache.Forget(ctx, ip); err != nil {
		middleware.Logger.WarnContext(ctx, "blacklist cache invalidation failed",
			slog.String("ip", ip), slog.String("error", err.Error()))
	}
}
