package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/repository"
	"giftdesk/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

var md5HexRegex = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

// Hash schemes reported by AuditPasswords.
const (
	HashSchemeBcrypt  = "bcrypt"
	HashSchemeMD5     = "md5"
	HashSchemeUnknown = "unknown"
)

// AdminService manages operator accounts and authentication. Passwords are
// stored as bcrypt hashes only.
type AdminService struct {
	admins repository.AdminRepository
	cost   int
	now    func() time.Time
}

// NewAdminService returns a new AdminService.
func NewAdminService(admins repository.AdminRepository) *AdminService {
	return &AdminService{admins: admins, cost: bcrypt.DefaultCost, now: time.Now}
}

// CreateAdminInput describes a new operator account.
type CreateAdminInput struct {
	Username    string
	Password    string
	Role        models.AdminRole
	Permissions []models.Section
}

// PasswordAudit names an account whose stored hash is not bcrypt.
type PasswordAudit struct {
	AdminID  uint   `json:"admin_id"`
	Username string `json:"username"`
	Scheme   string `json:"scheme"`
}

// Authenticate verifies credentials and records the login. Unknown users,
// disabled accounts and wrong passwords are indistinguishable to the caller.
func (s *AdminService) Authenticate(ctx context.Context, username, password string) (*models.Admin, error) {
	invalid := models.NewUnauthorizedError("Invalid credentials")

	admin, err := s.admins.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if admin.Disabled {
		return nil, invalid
	}
	if HashScheme(admin.PasswordHash) != HashSchemeBcrypt {
		middleware.Logger.WarnContext(ctx, "admin has a non-bcrypt password hash, reset required",
			slog.Uint64("admin_id", uint64(admin.ID)))
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}

	now := s.now()
	if err := s.admins.TouchLogin(ctx, admin.ID, now); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to record admin login",
			slog.Uint64("admin_id", uint64(admin.ID)), slog.String("error", err.Error()))
	} else {
		admin.LastLoginAt = &now
	}
	return admin, nil
}

// Get returns one admin.
func (s *AdminService) Get(ctx context.Context, id uint) (*models.Admin, error) {
	return s.admins.GetByID(ctx, id)
}

// List returns every admin. A non-nil actor needs the admins section.
func (s *AdminService) List(ctx context.Context, actor *models.Admin) ([]models.Admin, error) {
	if actor != nil && !actor.CanAccess(models.SectionAdmins) {
		return nil, models.NewForbiddenError()
	}
	return s.admins.List(ctx)
}

// Create adds an operator. A nil actor is the command line, which is trusted.
func (s *AdminService) Create(ctx context.Context, actor *models.Admin, in CreateAdminInput) (*models.Admin, error) {
	if actor != nil {
		if !actor.CanAccess(models.SectionAdmins) {
			return nil, models.NewForbiddenError()
		}
		if in.Role == models.AdminRoleSuper && actor.Role != models.AdminRoleSuper {
			return nil, models.NewForbiddenError()
		}
	}

	username := strings.TrimSpace(in.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	role, perms, err := normalizeAccess(in.Role, in.Permissions)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	admin := &models.Admin{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Permissions:  perms,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// SetPermissions changes an admin's role and section list. Only super admins
// may grant or revoke the super role, and nobody may change their own access.
func (s *AdminService) SetPermissions(ctx context.Context, actor *models.Admin, id uint, role models.AdminRole, permissions []models.Section) (*models.Admin, error) {
	if actor != nil {
		if !actor.CanAccess(models.SectionAdmins) || actor.ID == id {
			return nil, models.NewForbiddenError()
		}
	}

	role, perms, err := normalizeAccess(role, permissions)
	if err != nil {
		return nil, err
	}

	target, err := s.admins.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role != models.AdminRoleSuper &&
		(role == models.AdminRoleSuper || target.Role == models.AdminRoleSuper) {
		return nil, models.NewForbiddenError()
	}

	return s.admins.UpdatePermissions(ctx, id, role, perms)
}

// ResetPassword replaces an admin's hash with a fresh bcrypt hash.
func (s *AdminService) ResetPassword(ctx context.Context, id uint, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return models.NewValidationError(err.Error())
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.admins.UpdatePasswordHash(ctx, id, string(hash))
}

// SetDisabled locks or unlocks an account.
func (s *AdminService) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	return s.admins.SetDisabled(ctx, id, disabled)
}

// AuditPasswords lists admins whose stored hash is not bcrypt. Those accounts
// can not sign in until their password is reset.
func (s *AdminService) AuditPasswords(ctx context.Context) ([]PasswordAudit, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, err
	}
	findings := []PasswordAudit{}
	for _, a := range admins {
		if scheme := HashScheme(a.PasswordHash); scheme != HashSchemeBcrypt {
			findings = append(findings, PasswordAudit{AdminID: a.ID, Username: a.Username, Scheme: scheme})
		}
	}
	return findings, nil
}

// EnsureBootstrapAdmin creates a super admin when the table is empty. It is
// a development convenience and does nothing once any admin exists.
func (s *AdminService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return false, err
	}
	if len(admins) > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("bootstrap admin password is empty")
	}
	if _, err := s.Create(ctx, nil, CreateAdminInput{
		Username: username,
		Password: password,
		Role:     models.AdminRoleSuper,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// HashScheme classifies a stored password hash.
func HashScheme(hash string) string {
	if _, err := bcrypt.Cost([]byte(hash)); err == nil {
		return HashSchemeBcrypt
	}
	if md5HexRegex.MatchString(hash) {
		return HashSchemeMD5
	}
	return HashSchemeUnknown
}

func normalizeAccess(role models.AdminRole, permissions []models.Section) (models.AdminRole, []models.Section, error) {
	if role == "" {
		role = models.AdminRoleScoped
	}
	if role != models.AdminRoleSuper && role != models.AdminRoleScoped {
		return "", nil, models.NewValidationError("role must be super or scoped")
	}

	seen := make(map[models.Section]struct{}, len(permissions))
	perms := make([]models.Section, 0, len(permissions))
	for _, p := range permissions {
		if !models.ValidSection(string(p)) {
			return "", nil, models.NewValidationError("unknown section: " + string(p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	return role, perms, nil
}
