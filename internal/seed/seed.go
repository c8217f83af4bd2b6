// Package seed fills a development database with admins and approval
// requests. It is intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"time"

	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/repository"
	"giftdesk/internal/service"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumPending  int
	NumHistory  int
	ShouldClean bool
	// AdminPassword is set on every seeded admin.
	AdminPassword string
	Seed          int64
}

// Seeder writes demo data.
type Seeder struct {
	db       *gorm.DB
	requests repository.RequestRepository
	admins   *service.AdminService
	factory  *Factory
}

// NewSeeder returns a seeder for db.
func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	return &Seeder{
		db:       db,
		requests: repository.NewRequestRepository(db),
		admins:   service.NewAdminService(repository.NewAdminRepository(db)),
		factory:  NewFactory(seed),
	}
}

// ClearAll deletes every request, admin and blacklist entry.
func (s *Seeder) ClearAll() error {
	for _, table := range []any{&models.Request{}, &models.BlacklistedIP{}, &models.Admin{}} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
			return fmt.Errorf("clear %T: %w", table, err)
		}
	}
	return nil
}

// demoAdmins covers each permission shape the console distinguishes.
var demoAdmins = []service.CreateAdminInput{
	{Username: "desk_lead", Role: models.AdminRoleSuper},
	{Username: "login_desk", Role: models.AdminRoleScoped, Permissions: []models.Section{models.SectionLoginRequests}},
	{Username: "verify_desk", Role: models.AdminRoleScoped, Permissions: []models.Section{models.SectionVerificationRequests, models.SectionHistory}},
}

// Run seeds admins, pending requests and decided history.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	if opts.AdminPassword == "" {
		return fmt.Errorf("seed: admin password is required")
	}
	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	var deciders []uint
	for _, in := range demoAdmins {
		in.Password = opts.AdminPassword
		admin, err := s.admins.Create(ctx, nil, in)
		if err != nil {
			return fmt.Errorf("seed admin %s: %w", in.Username, err)
		}
		deciders = append(deciders, admin.ID)
	}

	for i := 0; i < opts.NumPending; i++ {
		if err := s.requests.Create(ctx, s.factory.Pending(s.factory.Kind(), 10*time.Minute)); err != nil {
			return fmt.Errorf("seed pending request: %w", err)
		}
	}
	for i := 0; i < opts.NumHistory; i++ {
		by := deciders[i%len(deciders)]
		req := s.factory.Resolved(s.factory.Kind(), s.factory.TerminalStatus(), by, 30*24*time.Hour)
		if err := s.requests.Create(ctx, req); err != nil {
			return fmt.Errorf("seed history request: %w", err)
		}
	}

	middleware.Logger.Info(fmt.Sprintf("seeded %d admins, %d pending and %d decided requests",
		len(demoAdmins), opts.NumPending, opts.NumHistory))
	return nil
}
