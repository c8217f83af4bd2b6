// Package service holds the business rules of the approval workflow.
package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/notifications"
	"giftdesk/internal/observability"
	"giftdesk/internal/repository"
	"giftdesk/internal/validation"

	"github.com/google/uuid"
)

// Broadcaster delivers an event to every socket in a room.
type Broadcaster interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// StatusCache memoizes status lookups.
type StatusCache interface {
	Get(ctx context.Context, id uint, dest any) (bool, error)
	Set(ctx context.Context, id uint, v any) error
	Invalidate(ctx context.Context, id uint) error
}

// ApprovalService is the single writer of approval requests. Every mutation
// commits before anything is broadcast, and broadcast failures never undo a
// committed change.
type ApprovalService struct {
	requests    repository.RequestRepository
	broadcaster Broadcaster
	statuses    StatusCache
	codeLength  int
	now         func() time.Time
}

// NewApprovalService returns a new ApprovalService. broadcaster and statuses
// may be nil.
func NewApprovalService(requests repository.RequestRepository, broadcaster Broadcaster, statuses StatusCache, codeLength int) *ApprovalService {
	if codeLength <= 0 {
		codeLength = validation.DefaultCodeLength
	}
	return &ApprovalService{
		requests:    requests,
		broadcaster: broadcaster,
		statuses:    statuses,
		codeLength:  codeLength,
		now:         time.Now,
	}
}

// CreateRequestInput is what a member submits.
type CreateRequestInput struct {
	Kind             models.RequestKind
	MemberIdentifier string
	DeviceLabel      string
	Code             string
	ClientIP         string
}

// StatusView is the member-facing status of a request.
type StatusView struct {
	ID         uint                 `json:"id"`
	Status     models.RequestStatus `json:"status"`
	ResolvedAt *time.Time           `json:"resolved_at,omitempty"`
}

// CreateRequest validates and stores a pending request, then announces it to
// the admin room. The returned record carries the owner token the member
// needs to cancel or listen.
func (s *ApprovalService) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.Request, error) {
	if !in.Kind.Valid() {
		return nil, models.NewValidationError("kind must be login or verification")
	}
	identifier := validation.NormalizeIdentifier(in.MemberIdentifier)
	if err := validation.ValidateMemberIdentifier(identifier); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	req := &models.Request{
		Kind:             in.Kind,
		MemberIdentifier: identifier,
		Status:           models.RequestStatusPending,
		OwnerToken:       uuid.NewString(),
		ClientIP:         in.ClientIP,
		CreatedAt:        s.now(),
	}

	if in.Kind == models.RequestKindVerification {
		if err := validation.ValidateVerificationCode(in.Code, s.codeLength); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if err := validation.ValidateDeviceLabel(in.DeviceLabel); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		req.Code = in.Code
		req.DeviceLabel = in.DeviceLabel
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	observability.RequestsCreated.WithLabelValues(string(req.Kind)).Inc()
	middleware.Logger.InfoContext(ctx, "approval request created",
		slog.Uint64("request_id", uint64(req.ID)), slog.String("kind", string(req.Kind)))

	s.publish(ctx, notifications.AdminRoom, models.CreatedEvent(req.Kind), req)
	return req, nil
}

// ResolveRequest applies an admin decision to a pending request. The actor's
// permission for the request's section is checked on every call.
func (s *ApprovalService) ResolveRequest(ctx context.Context, id uint, decision models.Decision, actor *models.Admin) (_ *models.Request, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "approval", "ResolveRequest")
	defer func() { observability.EndSpan(span, err) }()

	status, ok := decision.Status()
	if !ok {
		return nil, models.NewValidationError("decision must be approve or deny")
	}
	if actor == nil || actor.Disabled {
		return nil, models.NewForbiddenError()
	}

	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(current.Kind.Section()) {
		return nil, models.NewForbiddenError()
	}

	adminID := actor.ID
	resolved, err := s.requests.Transition(ctx, id, status, &adminID, s.now())
	if err != nil {
		if models.HasCode(err, models.CodeAlreadyResolved) {
			observability.ResolveConflicts.WithLabelValues(string(current.Kind)).Inc()
		}
		return nil, err
	}

	s.afterTransition(ctx, resolved)
	middleware.Logger.InfoContext(ctx, "approval request resolved",
		slog.Uint64("request_id", uint64(resolved.ID)),
		slog.String("status", string(resolved.Status)),
		slog.Uint64("admin_id", uint64(adminID)))
	return resolved, nil
}

// CancelRequest withdraws a pending request on behalf of the member holding
// its owner token.
func (s *ApprovalService) CancelRequest(ctx context.Context, id uint, ownerToken string) (*models.Request, error) {
	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tokenMatches(current.OwnerToken, ownerToken) {
		return nil, models.NewForbiddenError()
	}
	if current.Status != models.RequestStatusPending {
		return nil, models.NewAlreadyResolvedError(id, current.Status)
	}

	cancelled, err := s.requests.Transition(ctx, id, models.RequestStatusCancelled, nil, s.now())
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, cancelled)
	return cancelled, nil
}

// ExpireStale cancels requests left pending longer than maxAge. They end
// cancelled with no resolving admin, exactly like a member withdrawal.
func (s *ApprovalService) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.requests.ListStale(ctx, s.now().Add(-maxAge), 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range stale {
		cancelled, err := s.requests.Transition(ctx, req.ID, models.RequestStatusCancelled, nil, s.now())
		if err != nil {
			if models.HasCode(err, models.CodeAlreadyResolved) {
				continue
			}
			return expired, err
		}
		s.afterTransition(ctx, cancelled)
		expired++
	}
	if expired > 0 {
		middleware.Logger.InfoContext(ctx, "expired stale approval requests", slog.Int("count", expired))
	}
	return expired, nil
}

// GetStatus returns the member-facing status. Terminal statuses are served
// from the cache when present.
func (s *ApprovalService) GetStatus(ctx context.Context, id uint) (*StatusView, error) {
	if s.statuses != nil {
		var cached StatusView
		found, err := s.statuses.Get(ctx, id, &cached)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "status cache read failed",
				slog.Uint64("request_id", uint64(id)), slog.String("error", err.Error()))
		} else if found {
			return &cached, nil
		}
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &StatusView{ID: req.ID, Status: req.Status, ResolvedAt: req.ResolvedAt}

	if s.statuses != nil && req.Status.Terminal() {
		if err := s.statuses.Set(ctx, id, view); err != nil {
			middleware.Logger.WarnContext(ctx, "status cache write failed",
				slog.Uint64("request_id", uint64(id)), slog.String("error", err.Error()))
		}
	}
	return view, nil
}

// ListPending returns the pending requests the actor may act on, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, actor *models.Admin) ([]models.Request, error) {
	if actor == nil || actor.Disabled {
		return nil, models.NewForbiddenError()
	}
	return s.requests.ListPending(ctx, actor.PermittedKinds())
}

// ListHistory returns requests that reached status, newest first.
func (s *ApprovalService) ListHistory(ctx context.Context, actor *models.Admin, status models.RequestStatus, limit, offset int) ([]models.Request, error) {
	if !actor.CanAccess(models.SectionHistory) {
		return nil, models.NewForbiddenError()
	}
	if !status.Terminal() {
		return nil, models.NewValidationError("status must be approved, denied or cancelled")
	}
	return s.requests.ListByStatus(ctx, status, actor.PermittedKinds(), limit, offset)
}

// AuthorizeMemberRoom checks that token owns request id before a member
// socket may join its room.
func (s *ApprovalService) AuthorizeMemberRoom(ctx context.Context, id uint, token string) error {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !tokenMatches(req.OwnerToken, token) {
		return models.NewForbiddenError()
	}
	return nil
}

func (s *ApprovalService) afterTransition(ctx context.Context, req *models.Request) {
	ctx = context.WithoutCancel(ctx)
	observability.RequestsResolved.WithLabelValues(string(req.Kind), string(req.Status)).Inc()

	if s.statuses != nil {
		if err := s.statuses.Invalidate(ctx, req.ID); err != nil {
			middleware.Logger.WarnContext(ctx, "status cache invalidation failed",
				slog.Uint64("request_id", uint64(req.ID)), slog.String("error", err.Error()))
		}
	}

	if req.Status == models.RequestStatusCancelled {
		s.publish(ctx, notifications.AdminRoom, models.CancelledEvent(req.Kind), models.RequestRef{ID: req.ID})
	} else {
		s.publish(ctx, notifications.AdminRoom, models.ResolvedEvent(req.Kind), models.RequestResolution{
			ID:         req.ID,
			Status:     req.Status,
			ResolvedAt: req.ResolvedAt,
			ResolvedBy: req.ResolvedBy,
		})
	}
	s.publish(ctx, notifications.MemberRoom(req.ID), models.EventRequestResolved, models.RequestResolution{
		ID:     req.ID,
		Status: req.Status,
	})
}

func (s *ApprovalService) publish(ctx context.Context, room, event string, payload any) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Emit(ctx, room, event, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "broadcast failed",
			slog.String("room", room), slog.String("event", event), slog.String("error", err.Error()))
	}
}

func tokenMatches(expected, given string) bool {
	if expected == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
