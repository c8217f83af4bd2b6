package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"giftdesk/internal/config"
	"giftdesk/internal/database"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret   = "test-secret-key-12345678901234567890123456789012"
	testPassword = "Correct-Horse-42"
)

type testEnv struct {
	server *Server
	app    *fiber.App
	redis  *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                    "test",
		Port:                   "0",
		JWTSecret:              testSecret,
		DBDriver:               "sqlite",
		VerificationCodeLength: 6,
		StatusCacheTTLSeconds:  30,
		TokenTTLHours:          1,
	}
}

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:srv_%s?mode=memory&cache=shared", name)), &gorm.Config{
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

// newTestEnv builds a server over sqlite and miniredis with its room
// subscription running, so broadcasts reach sockets exactly as in production.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := NewServerWithDeps(testConfig(), setupSQLite(t), rdb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.StartBackground(ctx))
	t.Cleanup(func() { _ = s.hub.Shutdown(context.Background()) })

	return &testEnv{server: s, app: s.NewApp(), redis: mr, rdb: rdb}
}

func (e *testEnv) createAdmin(t *testing.T, username string, role models.AdminRole, sections ...models.Section) *models.Admin {
	t.Helper()
	admin, err := e.server.admins.Create(context.Background(), nil, service.CreateAdminInput{
		Username:    username,
		Password:    testPassword,
		Role:        role,
		Permissions: sections,
	})
	require.NoError(t, err)
	return admin
}

func (e *testEnv) tokenFor(t *testing.T, admin *models.Admin) string {
	t.Helper()
	token, _, err := middleware.IssueAdminToken(testSecret, admin.ID, admin.Username, time.Hour)
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	Status int
	Body   []byte
}

func (r apiResponse) decode(t *testing.T, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, dest), "body: %s", r.Body)
}

func (r apiResponse) errorCode(t *testing.T) string {
	t.Helper()
	var body models.ErrorResponse
	r.decode(t, &body)
	return body.Code
}

// do sends a request through app.Test. headers alternate key, value.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return apiResponse{Status: resp.StatusCode, Body: raw}
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

// listen serves the app on a loopback port for socket tests and returns its
// host:port.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() { _ = e.app.Shutdown() })
	return ln.Addr().String()
}

type createdRequest struct {
	ID     uint                 `json:"id"`
	Kind   models.RequestKind   `json:"kind"`
	Status models.RequestStatus `json:"status"`
	Token  string               `json:"token"`
}

func (e *testEnv) submit(t *testing.T, body map[string]any) createdRequest {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/requests", body)
	require.Equal(t, http.StatusCreated, resp.Status, "body: %s", resp.Body)
	var out createdRequest
	resp.decode(t, &out)
	return out
}
