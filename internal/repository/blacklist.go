package repository

import (
	"context"

	"giftdesk/internal/models"

	"gorm.io/gorm"
)

// BlacklistRepository defines persistence operations for blocked addresses.
type BlacklistRepository interface {
	Add(ctx context.Context, entry *models.BlacklistedIP) error
	Remove(ctx context.Context, ip string) error
	List(ctx context.Context) ([]models.BlacklistedIP, error)
	Exists(ctx context.Context, ip string) (bool, error)
}

type blacklistRepository struct {
	db *gorm.DB
}

// NewBlacklistRepository returns a new BlacklistRepository implementation.
func NewBlacklistRepository(db *gorm.DB) BlacklistRepository {
	return &blacklistRepository{db: db}
}

func (r *blacklistRepository) Add(ctx context.Context, entry *models.BlacklistedIP) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("IP is already blacklisted")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *blacklistRepository) Remove(ctx context.Context, ip string) error {
	res := r.db.WithContext(ctx).Where("ip = ?", ip).Delete(&models.BlacklistedIP{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Blacklist entry", ip)
	}
	return nil
}

func (r *blacklistRepository) List(ctx context.Context) ([]models.BlacklistedIP, error) {
	entries := []models.BlacklistedIP{}
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (r *blacklistRepository) Exists(ctx context.Context, ip string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.BlacklistedIP{}).Where("ip = ?", ip).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}
