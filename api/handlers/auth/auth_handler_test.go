package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	response "opsdash/api/handlers/common"
	"opsdash/internal/audit"
	"opsdash/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	router *gin.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:auth_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auth.User{}, &audit.Record{}))

	store := auth.NewIdentityStore(db)
	require.NoError(t, store.Create(context.Background(), &auth.User{
		Username: "alice",
		Email:    "alice@example.com",
		Role:     auth.RoleStandard,
		IsActive: true,
	}, "correct-horse"))

	jwtSvc := auth.NewJWTService("test-secret", "opsdash", time.Hour, nil)
	h := NewAuthHandler(auth.NewSessionService(store, jwtSvc, audit.NewRecorder(db, nil), nil))

	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	protected := r.Group("/api", auth.AuthMiddleware(jwtSvc, store))
	protected.POST("/auth/logout", h.Logout)
	protected.GET("/auth/me", h.Me)
	return &fixture{db: db, router: r}
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) categories(t *testing.T) []audit.Category {
	var records []audit.Record
	require.NoError(t, f.db.Order("id ASC").Find(&records).Error)
	out := make([]audit.Category, 0, len(records))
	for _, r := range records {
		out = append(out, r.Category)
	}
	return out
}

func TestLoginMeLogout(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data auth.LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	token := body.Data.Token.AccessToken
	require.NotEmpty(t, token)
	assert.Equal(t, "alice", body.Data.User.Handle)

	w = f.do(http.MethodGet, "/api/auth/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	w = f.do(http.MethodPost, "/api/auth/logout", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []audit.Category{audit.CategoryLogin, audit.CategoryLogout}, f.categories(t))
}

func TestLoginWrongPassword(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, response.CodeUnauthorized, body.Code)
	assert.Equal(t, []audit.Category{audit.CategoryLoginFailed}, f.categories(t))
}

func TestLoginMissingFields(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/auth/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.categories(t))
}

func TestMeRequiresToken(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/auth/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/auth/me", "garbage", "").Code)
}

type brokenSessions struct{}

func (brokenSessions) Login(context.Context, string, string, audit.Origin) (*auth.LoginResult, error) {
	return nil, errors.Join(audit.ErrWriteFailed, errors.New("disk full"))
}

func (brokenSessions) Logout(context.Context, *auth.Identity, *auth.TokenClaims, audit.Origin) error {
	return nil
}

func TestLoginAuditUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/auth/login", NewAuthHandler(brokenSessions{}).Login)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"a","password":"b"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), response.CodeAuditUnavailable)
	assert.NotContains(t, w.Body.String(), "access_token")
}
