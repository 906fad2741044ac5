package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opsdash/internal/audit"
	"opsdash/internal/command"
	"opsdash/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRunner 不启动真实进程
type fakeRunner struct{}

func (fakeRunner) Run(_ context.Context, target command.Target, _ time.Duration) *command.Result {
	if target.Kind == command.KindServiceAction && target.Action == command.ActionStatus {
		return &command.Result{
			Status:       command.StatusCompleted,
			Message:      fmt.Sprintf("Service %s is active", target.Service),
			ServiceState: command.StateActive,
		}
	}
	return &command.Result{Status: command.StatusCompleted, Message: "ok", Output: "ran: " + target.Describe()}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Mode: "test"},
		Database: config.DatabaseConfig{Driver: "sqlite", AutoMigrate: true},
		Auth: config.AuthConfig{
			JWTSecret:      "test-secret",
			Issuer:         "opsdash",
			AccessTokenTTL: time.Hour,
			AdminUsername:  "admin",
			AdminPassword:  "admin-password",
			AdminEmail:     "admin@example.com",
		},
		Command: config.CommandConfig{
			ShellTimeout:  5 * time.Second,
			StatusTimeout: 5 * time.Second,
			ActionTimeout: 5 * time.Second,
			OutputCap:     500,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
}

type harness struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	container := &AppContainer{DB: db, Config: testConfig(), Runner: fakeRunner{}}
	require.NoError(t, container.init(context.Background()))

	return &harness{t: t, db: db, router: SetupRouter(container)}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) login(username, password string) string {
	w := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data struct {
			Token struct {
				AccessToken string `json:"access_token"`
			} `json:"token"`
		} `json:"data"`
	}
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data.Token.AccessToken
}

func (h *harness) auditCategories() []audit.Category {
	var records []audit.Record
	require.NoError(h.t, h.db.Order("id ASC").Find(&records).Error)
	out := make([]audit.Category, 0, len(records))
	for _, r := range records {
		out = append(out, r.Category)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", "", nil).Code)

	w := h.do(http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"disabled"`)

	w = h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminCommandFlow(t *testing.T) {
	h := newHarness(t)
	token := h.login("admin", "admin-password")

	w := h.do(http.MethodPost, "/api/commands/execute", token, map[string]string{"command": "uptime"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ran: uptime")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = h.do(http.MethodPost, "/api/terminal", token, map[string]string{"command": "rm -rf /tmp/x"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "blocked for security reasons")

	assert.Equal(t, []audit.Category{
		audit.CategoryLogin,
		audit.CategoryCommandExecution,
		audit.CategoryTerminalCommand,
	}, h.auditCategories())
}

func TestServiceStatusRefreshesCache(t *testing.T) {
	h := newHarness(t)
	token := h.login("admin", "admin-password")

	w := h.do(http.MethodGet, "/api/services/nginx", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unknown"`)

	w = h.do(http.MethodPost, "/api/services/nginx/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/services/nginx", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"active"`)

	w = h.do(http.MethodPost, "/api/services/nginx/mask", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStandardUserIsDeniedAndAudited(t *testing.T) {
	h := newHarness(t)
	admin := h.login("admin", "admin-password")

	w := h.do(http.MethodPost, "/api/admin/users", admin, map[string]any{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "bob-password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	bob := h.login("bob", "bob-password")

	w = h.do(http.MethodPost, "/api/commands/execute", bob, map[string]string{"command": "uptime"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient privilege")

	w = h.do(http.MethodPost, "/api/services/nginx/status", bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/services/nginx/restart", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/api/audit/logs", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/api/audit/logs?category=COMMAND_EXECUTION", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "User bob executed command: uptime (blocked: insufficient privilege)")
}

func TestAuditOutageFailsClosed(t *testing.T) {
	h := newHarness(t)
	token := h.login("admin", "admin-password")

	require.NoError(t, h.db.Migrator().DropTable(&audit.Record{}))

	w := h.do(http.MethodPost, "/api/commands/execute", token, map[string]string{"command": "uptime"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "AUDIT_UNAVAILABLE")
	assert.NotContains(t, w.Body.String(), "ran: uptime")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/commands/execute", "", map[string]string{"command": "ls"}).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/services", "", nil).Code)
	assert.Empty(t, h.auditCategories())
}

func TestNormalizeRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache.internal:6380")
	cfg := normalizeRedisConfig(config.RedisConfig{})
	assert.Equal(t, "standalone", cfg.Mode)
	assert.Equal(t, "cache.internal", cfg.Host)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, 10, cfg.PoolSize)

	t.Setenv("APP_REDIS_CLUSTER_ADDRS", "a:1, b:2,,")
	cfg = normalizeRedisConfig(config.RedisConfig{Mode: "Cluster"})
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.ClusterAddrs)

	host, port := parseRedisAddr("nohost")
	assert.Equal(t, "nohost", host)
	assert.Zero(t, port)
}
