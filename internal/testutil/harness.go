// Package testutil provides shared fixtures for tests that need a running
// giftdesk server.
package testutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"giftdesk/internal/config"
	"giftdesk/internal/database"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/repository"
	"giftdesk/internal/server"
	"giftdesk/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AdminPassword is the password of every admin created by a Harness.
const AdminPassword = "Correct-Horse-42"

// Harness is a giftdesk server on a loopback port backed by sqlite and
// miniredis.
type Harness struct {
	BaseURL string
	DB      *gorm.DB
	Redis   *miniredis.Miniredis
	Config  *config.Config

	admins *service.AdminService
}

// StartServer runs a server for the duration of t.
func StartServer(t *testing.T) *Harness {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	cfg := &config.Config{
		Env:                    "test",
		Port:                   "0",
		JWTSecret:              "harness-secret-key-0123456789abcdef0123456789",
		DBDriver:               "sqlite",
		VerificationCodeLength: 6,
		StatusCacheTTLSeconds:  30,
		TokenTTLHours:          1,
	}

	db := OpenSQLite(t, "harness")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s, err := server.NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.StartBackground(ctx))

	app := s.NewApp()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = s.Shutdown(shutdownCtx)
	})

	return &Harness{
		BaseURL: "http://" + ln.Addr().String(),
		DB:      db,
		Redis:   mr,
		Config:  cfg,
		admins:  service.NewAdminService(repository.NewAdminRepository(db)),
	}
}

// CreateAdmin stores an admin with AdminPassword.
func (h *Harness) CreateAdmin(t *testing.T, username string, role models.AdminRole, sections ...models.Section) *models.Admin {
	t.Helper()
	admin, err := h.admins.Create(context.Background(), nil, service.CreateAdminInput{
		Username:    username,
		Password:    AdminPassword,
		Role:        role,
		Permissions: sections,
	})
	require.NoError(t, err)
	return admin
}

// TokenFor signs a bearer token for admin.
func (h *Harness) TokenFor(t *testing.T, admin *models.Admin) string {
	t.Helper()
	token, _, err := middleware.IssueAdminToken(h.Config.JWTSecret, admin.ID, admin.Username, time.Hour)
	require.NoError(t, err)
	return token
}

// PendingIDs returns the ids the store holds as pending, oldest first.
func (h *Harness) PendingIDs(t *testing.T, kinds ...models.RequestKind) []uint {
	t.Helper()
	q := h.DB.Model(&models.Request{}).Where("status = ?", models.RequestStatusPending)
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	var ids []uint
	require.NoError(t, q.Order("created_at ASC, id ASC").Pluck("id", &ids).Error)
	return ids
}

// OpenSQLite returns a migrated in-memory database private to t.
func OpenSQLite(t *testing.T, prefix string) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", prefix, name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}
