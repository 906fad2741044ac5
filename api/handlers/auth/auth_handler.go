package auth

import (
	"context"
	"net/http"

	response "opsdash/api/handlers/common"
	"opsdash/internal/audit"
	"opsdash/internal/auth"

	"github.com/gin-gonic/gin"
)

// SessionManager 登录会话接口
type SessionManager interface {
	Login(ctx context.Context, username, password string, origin audit.Origin) (*auth.LoginResult, error)
	Logout(ctx context.Context, identity *auth.Identity, claims *auth.TokenClaims, origin audit.Origin) error
}

// AuthHandler 认证处理器
type AuthHandler struct {
	sessions SessionManager
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(sessions SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=80"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
// @Summary 用户登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录凭证"
// @Success 200 {object} auth.LoginResult
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "username and password are required")
		return
	}

	result, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password, audit.OriginFromGin(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, result)
}

// Logout 注销当前令牌
// @Summary 用户登出
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	claims, _ := auth.CurrentClaims(c)

	if err := h.sessions.Logout(c.Request.Context(), identity, claims, audit.OriginFromGin(c)); err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "logged out"})
}

// Me 当前登录身份
// @Summary 当前用户
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} auth.Identity
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	response.OK(c, identity)
}
