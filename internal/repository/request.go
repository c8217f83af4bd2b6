// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"giftdesk/internal/models"
	"giftdesk/internal/observability"

	"gorm.io/gorm"
)

const requestsTable = "approval_requests"

// RequestRepository defines persistence operations for approval requests.
// It is the only writer of request rows.
type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	ListPending(ctx context.Context, kinds []models.RequestKind) ([]models.Request, error)
	ListByStatus(ctx context.Context, status models.RequestStatus, kinds []models.RequestKind, limit, offset int) ([]models.Request, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Request, error)
	Transition(ctx context.Context, id uint, to models.RequestStatus, resolvedBy *uint, at time.Time) (*models.Request, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository returns a new RequestRepository implementation.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *models.Request) (err error) {
	ctx, span := observability.StartRepositorySpan(ctx, requestsTable, "Create")
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackQuery("create", requestsTable)()

	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	defer observability.TrackQuery("get", requestsTable)()

	var req models.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *requestRepository) ListPending(ctx context.Context, kinds []models.RequestKind) ([]models.Request, error) {
	requests := []models.Request{}
	if len(kinds) == 0 {
		return requests, nil
	}
	defer observability.TrackQuery("list_pending", requestsTable)()

	if err := r.db.WithContext(ctx).
		Where("status = ? AND kind IN ?", models.RequestStatusPending, kinds).
		Order("created_at ASC, id ASC").
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

func (r *requestRepository) ListByStatus(ctx context.Context, status models.RequestStatus, kinds []models.RequestKind, limit, offset int) ([]models.Request, error) {
	requests := []models.Request{}
	if len(kinds) == 0 {
		return requests, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	order := "resolved_at DESC, id DESC"
	if status == models.RequestStatusPending {
		order = "created_at ASC, id ASC"
	}

	if err := r.db.WithContext(ctx).
		Where("status = ? AND kind IN ?", status, kinds).
		Order(order).
		Limit(limit).
		Offset(offset).
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

func (r *requestRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Request, error) {
	if limit <= 0 {
		limit = 100
	}
	requests := []models.Request{}
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.RequestStatusPending, before).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

// Transition moves a pending request to a terminal status with a
// compare-and-set on the status column. A request that is no longer pending
// yields an AlreadyResolved error carrying its current status; concurrent
// callers on one id therefore see exactly one success.
func (r *requestRepository) Transition(ctx context.Context, id uint, to models.RequestStatus, resolvedBy *uint, at time.Time) (result *models.Request, err error) {
	if !to.Terminal() {
		return nil, models.NewValidationError("target status must be terminal")
	}

	ctx, span := observability.StartRepositorySpan(ctx, requestsTable, "Transition")
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackQuery("transition", requestsTable)()

	updates := map[string]any{
		"status":      to,
		"resolved_at": at,
		"resolved_by": nil,
		"updated_at":  at,
	}
	if resolvedBy != nil {
		updates["resolved_by"] = *resolvedBy
	}

	var req models.Request
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", id, models.RequestStatusPending).
			Updates(updates)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}

		if err := tx.First(&req, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Request", id)
			}
			return models.NewInternalError(err)
		}

		if res.RowsAffected == 0 {
			return models.NewAlreadyResolvedError(id, req.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
