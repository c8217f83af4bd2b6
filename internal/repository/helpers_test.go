package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"giftdesk/internal/database"
	"giftdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupSQLite opens an isolated shared-cache in-memory database with the
// application schema. One connection keeps sqlite writers serialized.
func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

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

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func newPending(kind models.RequestKind, identifier string, created time.Time) *models.Request {
	req := &models.Request{
		Kind:             kind,
		MemberIdentifier: identifier,
		Status:           models.RequestStatusPending,
		OwnerToken:       "token-" + identifier,
		CreatedAt:        created,
	}
	if kind == models.RequestKindVerification {
		req.DeviceLabel = "iPhone"
		req.Code = "123456"
	}
	return req
}
