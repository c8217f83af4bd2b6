package repository

import (
	"context"
	"errors"
	"time"

	"giftdesk/internal/models"

	"gorm.io/gorm"
)

// AdminRepository defines persistence operations for operator accounts.
type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id uint) (*models.Admin, error)
	GetByUsername(ctx context.Context, username string) (*models.Admin, error)
	List(ctx context.Context) ([]models.Admin, error)
	UpdatePermissions(ctx context.Context, id uint, role models.AdminRole, permissions []models.Section) (*models.Admin, error)
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
	SetDisabled(ctx context.Context, id uint, disabled bool) error
	TouchLogin(ctx context.Context, id uint, at time.Time) error
}

type adminRepository struct {
	db *gorm.DB
}

// NewAdminRepository returns a new AdminRepository implementation.
func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) Create(ctx context.Context, admin *models.Admin) error {
	if err := r.db.WithContext(ctx).Create(admin).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Admin username already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *adminRepository) GetByID(ctx context.Context, id uint) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).First(&admin, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Admin", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &admin, nil
}

func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Admin", username)
		}
		return nil, models.NewInternalError(err)
	}
	return &admin, nil
}

func (r *adminRepository) List(ctx context.Context) ([]models.Admin, error) {
	admins := []models.Admin{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&admins).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return admins, nil
}

func (r *adminRepository) UpdatePermissions(ctx context.Context, id uint, role models.AdminRole, permissions []models.Section) (*models.Admin, error) {
	if permissions == nil {
		permissions = []models.Section{}
	}
	res := r.db.WithContext(ctx).
		Model(&models.Admin{ID: id}).
		Select("role", "permissions").
		Updates(models.Admin{Role: role, Permissions: permissions})
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Admin", id)
	}
	return r.GetByID(ctx, id)
}

func (r *adminRepository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return r.updateColumn(ctx, id, "password_hash", hash)
}

func (r *adminRepository) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	return r.updateColumn(ctx, id, "disabled", disabled)
}

func (r *adminRepository) TouchLogin(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumn(ctx, id, "last_login_at", at)
}

func (r *adminRepository) updateColumn(ctx context.Context, id uint, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&models.Admin{ID: id}).Update(column, value)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Admin", id)
	}
	return nil
}
