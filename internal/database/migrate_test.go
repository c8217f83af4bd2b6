package database

import (
	"context"
	"testing"

	"giftdesk/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestEmbeddedMigrations_Ordered(t *testing.T) {
	ms := GetMigrations()
	require.Len(t, ms, 3)
	for i, m := range ms {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpScript)
		assert.NotEmpty(t, m.DownScript)
	}
	assert.Equal(t, "000001_create_approval_requests", ms[0].String())
	assert.Contains(t, ms[0].UpScript, "approval_requests")
	assert.Nil(t, GetMigrationByVersion(42))
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		sql     bool
		auto    bool
		wantErr bool
	}{
		{"sqlite always auto", config.Config{DBDriver: "sqlite", DBSchemaMode: "sql"}, false, true, false},
		{"hybrid development", config.Config{DBDriver: "postgres", Env: "development"}, true, true, false},
		{"hybrid production", config.Config{DBDriver: "postgres", Env: "production"}, true, false, false},
		{"sql only", config.Config{DBDriver: "postgres", DBSchemaMode: "sql"}, true, false, false},
		{"auto refused in production", config.Config{DBDriver: "postgres", DBSchemaMode: "auto", Env: "prod"}, false, false, true},
		{"unknown mode", config.Config{DBDriver: "postgres", DBSchemaMode: "yolo"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			sql, auto, err := schemaPolicy(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.auto, auto)
		})
	}
}

func TestRunMigrations_RejectsUnknownAppliedVersion(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migration_logs`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "migration_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(99))

	err := RunMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000099")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackMigration_NotApplied(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT .* FROM "migration_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	err := RollbackMigration(context.Background(), db, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been applied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
