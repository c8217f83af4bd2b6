package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"giftdesk/internal/database"
	"giftdesk/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

type emitted struct {
	Room    string
	Event   string
	Payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (b *recordingBroadcaster) Emit(_ context.Context, room, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{Room: room, Event: event, Payload: payload})
	return b.err
}

func (b *recordingBroadcaster) snapshot() []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]emitted(nil), b.events...)
}

func (b *recordingBroadcaster) byEvent(event string) []emitted {
	var out []emitted
	for _, e := range b.snapshot() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type memoryStatusCache struct {
	mu          sync.Mutex
	entries     map[uint][]byte
	invalidated []uint
	getErr      error
}

func newMemoryStatusCache() *memoryStatusCache {
	return &memoryStatusCache{entries: map[uint][]byte{}}
}

func (c *memoryStatusCache) Get(_ context.Context, id uint, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, c.getErr
	}
	raw, ok := c.entries[id]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryStatusCache) Set(_ context.Context, id uint, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.entries[id] = raw
	return nil
}

func (c *memoryStatusCache) Invalidate(_ context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *memoryStatusCache) has(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

type requestRepoStub struct {
	createFn       func(context.Context, *models.Request) error
	getByIDFn      func(context.Context, uint) (*models.Request, error)
	listPendingFn  func(context.Context, []models.RequestKind) ([]models.Request, error)
	listByStatusFn func(context.Context, models.RequestStatus, []models.RequestKind, int, int) ([]models.Request, error)
	listStaleFn    func(context.Context, time.Time, int) ([]models.Request, error)
	transitionFn   func(context.Context, uint, models.RequestStatus, *uint, time.Time) (*models.Request, error)
}

func (s *requestRepoStub) Create(ctx context.Context, req *models.Request) error {
	return s.createFn(ctx, req)
}
func (s *requestRepoStub) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	return s.getByIDFn(ctx, id)
}
func (s *requestRepoStub) ListPending(ctx context.Context, kinds []models.RequestKind) ([]models.Request, error) {
	return s.listPendingFn(ctx, kinds)
}
func (s *requestRepoStub) ListByStatus(ctx context.Context, status models.RequestStatus, kinds []models.RequestKind, limit, offset int) ([]models.Request, error) {
	return s.listByStatusFn(ctx, status, kinds, limit, offset)
}
func (s *requestRepoStub) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Request, error) {
	return s.listStaleFn(ctx, before, limit)
}
func (s *requestRepoStub) Transition(ctx context.Context, id uint, to models.RequestStatus, resolvedBy *uint, at time.Time) (*models.Request, error) {
	return s.transitionFn(ctx, id, to, resolvedBy, at)
}

type adminRepoStub struct {
	createFn             func(context.Context, *models.Admin) error
	getByIDFn            func(context.Context, uint) (*models.Admin, error)
	getByUsernameFn      func(context.Context, string) (*models.Admin, error)
	listFn               func(context.Context) ([]models.Admin, error)
	updatePermissionsFn  func(context.Context, uint, models.AdminRole, []models.Section) (*models.Admin, error)
	updatePasswordHashFn func(context.Context, uint, string) error
	setDisabledFn        func(context.Context, uint, bool) error
	touchLoginFn         func(context.Context, uint, time.Time) error
}

func (s *adminRepoStub) Create(ctx context.Context, admin *models.Admin) error {
	return s.createFn(ctx, admin)
}
func (s *adminRepoStub) GetByID(ctx context.Context, id uint) (*models.Admin, error) {
	return s.getByIDFn(ctx, id)
}
func (s *adminRepoStub) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *adminRepoStub) List(ctx context.Context) ([]models.Admin, error) {
	return s.listFn(ctx)
}
func (s *adminRepoStub) UpdatePermissions(ctx context.Context, id uint, role models.AdminRole, permissions []models.Section) (*models.Admin, error) {
	return s.updatePermissionsFn(ctx, id, role, permissions)
}
func (s *adminRepoStub) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return s.updatePasswordHashFn(ctx, id, hash)
}
func (s *adminRepoStub) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	return s.setDisabledFn(ctx, id, disabled)
}
func (s *adminRepoStub) TouchLogin(ctx context.Context, id uint, at time.Time) error {
	return s.touchLoginFn(ctx, id, at)
}

var errStubDatabase = errors.New("database unavailable")

func superAdmin() *models.Admin {
	return &models.Admin{ID: 1, Username: "root_admin", Role: models.AdminRoleSuper}
}

func scopedAdmin(id uint, sections ...models.Section) *models.Admin {
	return &models.Admin{ID: id, Username: fmt.Sprintf("scoped_%d", id), Role: models.AdminRoleScoped, Permissions: sections}
}

func loginInput(identifier string) CreateRequestInput {
	return CreateRequestInput{Kind: models.RequestKindLogin, MemberIdentifier: identifier, ClientIP: "203.0.113.9"}
}

func verificationInput(identifier, code string) CreateRequestInput {
	return CreateRequestInput{
		Kind:             models.RequestKindVerification,
		MemberIdentifier: identifier,
		DeviceLabel:      "Pixel 8",
		Code:             code,
	}
}
