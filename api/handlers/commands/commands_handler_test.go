package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	response "opsdash/api/handlers/common"
	"opsdash/internal/audit"
	"opsdash/internal/auth"
	"opsdash/internal/command"
	"opsdash/internal/control"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubController struct {
	result  *command.Result
	err     error
	surface control.Surface
	text    string
	origin  audit.Origin
}

func (s *stubController) RunFreeformCommand(_ context.Context, _ *auth.Identity, origin audit.Origin, surface control.Surface, text string) (*command.Result, error) {
	s.surface = surface
	s.text = text
	s.origin = origin
	return s.result, s.err
}

func newRouter(h *CommandHandler, identity *auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if identity != nil {
			auth.SetIdentity(c, identity)
		}
		c.Next()
	})
	r.POST("/api/commands/execute", h.Execute)
	r.POST("/api/terminal", h.Terminal)
	return r
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var admin = &auth.Identity{ID: "u-1", Handle: "root", Role: auth.RoleAdministrator, Active: true}

func TestExecuteCompleted(t *testing.T) {
	stub := &stubController{result: &command.Result{Status: command.StatusCompleted, Message: "Command executed successfully", Output: "hello\n"}}
	r := newRouter(NewCommandHandler(stub), admin)

	w := post(r, "/api/commands/execute", `{"command":"  echo hello  "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, control.SurfaceQuick, stub.surface)
	assert.Equal(t, "echo hello", stub.text)
	assert.Equal(t, "203.0.113.9", stub.origin.Address)

	var body struct {
		Success bool           `json:"success"`
		Data    command.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "hello\n", body.Data.Output)
}

func TestTerminalFailedIsStillOK(t *testing.T) {
	stub := &stubController{result: &command.Result{Status: command.StatusFailed, Message: "Command execution failed", ExitCode: 2}}
	r := newRouter(NewCommandHandler(stub), admin)

	w := post(r, "/api/terminal", `{"command":"false"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, control.SurfaceTerminal, stub.surface)

	var body response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
}

func TestExecuteBlocked(t *testing.T) {
	stub := &stubController{result: command.Blocked("blocked for security reasons")}
	r := newRouter(NewCommandHandler(stub), admin)

	w := post(r, "/api/commands/execute", `{"command":"rm -rf /"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	var body response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "blocked for security reasons", body.Error)
}

func TestExecuteAuditUnavailable(t *testing.T) {
	stub := &stubController{err: fmt.Errorf("%w: %w", control.ErrAuditUnavailable, audit.ErrWriteFailed)}
	r := newRouter(NewCommandHandler(stub), admin)

	w := post(r, "/api/commands/execute", `{"command":"uptime"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, response.CodeAuditUnavailable, body.Code)
	assert.NotContains(t, w.Body.String(), "output")
}

func TestExecuteRequiresIdentity(t *testing.T) {
	stub := &stubController{}
	r := newRouter(NewCommandHandler(stub), nil)

	w := post(r, "/api/commands/execute", `{"command":"uptime"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, stub.text)
}

func TestExecuteRejectsMalformedBody(t *testing.T) {
	r := newRouter(NewCommandHandler(&stubController{}), admin)

	w := post(r, "/api/commands/execute", `{"command":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
