package user

import (
	"context"
	"fmt"
	"net/http"

	response "opsdash/api/handlers/common"
	"opsdash/internal/audit"
	"opsdash/internal/auth"

	"github.com/gin-gonic/gin"
)

// Manager 用户管理接口
type Manager interface {
	List(ctx context.Context) ([]auth.User, error)
	Get(ctx context.Context, id string) (*auth.User, error)
	Create(ctx context.Context, actor *auth.Identity, in auth.CreateUserInput, origin audit.Origin) (*auth.User, error)
	Update(ctx context.Context, actor *auth.Identity, id string, in auth.UpdateUserInput, origin audit.Origin) (*auth.User, string, error)
	Delete(ctx context.Context, actor *auth.Identity, id string, origin audit.Origin) error
	UpdateProfile(ctx context.Context, identity *auth.Identity, in auth.ProfileInput, origin audit.Origin) (*auth.User, error)
}

// Handler 用户管理与个人资料 Handler
type Handler struct {
	users Manager
}

// NewHandler 创建 Handler
func NewHandler(users Manager) *Handler {
	return &Handler{users: users}
}

// UpdateUserResponse 修改结果；重置密码时返回一次性明文密码
type UpdateUserResponse struct {
	User        *auth.User `json:"user"`
	NewPassword string     `json:"new_password,omitempty"`
}

// ListUsers 用户列表
// @Summary 用户列表
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, users)
}

// GetUser 用户详情
// @Summary 用户详情
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "用户ID"
// @Success 200 {object} auth.User
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, user)
}

// CreateUser 创建用户
// @Summary 创建用户
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body auth.CreateUserInput true "用户信息"
// @Success 201 {object} auth.User
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	actor, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	var in auth.CreateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request: "+err.Error())
		return
	}
	if in.Role != "" && !in.Role.Valid() {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, fmt.Sprintf("unknown role %q", in.Role))
		return
	}

	user, err := h.users.Create(c.Request.Context(), actor, in, audit.OriginFromGin(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.APIResponse{Success: true, Data: user})
}

// UpdateUser 修改用户
// @Summary 修改用户
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "用户ID"
// @Param request body auth.UpdateUserInput true "修改内容"
// @Success 200 {object} UpdateUserResponse
// @Router /api/admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	actor, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	var in auth.UpdateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request: "+err.Error())
		return
	}
	if in.Role != nil && !in.Role.Valid() {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, fmt.Sprintf("unknown role %q", *in.Role))
		return
	}

	user, password, err := h.users.Update(c.Request.Context(), actor, c.Param("id"), in, audit.OriginFromGin(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, UpdateUserResponse{User: user, NewPassword: password})
}

// DeleteUser 删除用户
// @Summary 删除用户
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "用户ID"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /api/admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	actor, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), actor, c.Param("id"), audit.OriginFromGin(c)); err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "user deleted"})
}

// GetProfile 获取当前用户资料
// @Summary 获取用户资料
// @Tags User
// @Security BearerAuth
// @Produce json
// @Success 200 {object} auth.User
// @Router /api/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), identity.ID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, user)
}

// UpdateProfile 更新当前用户资料
// @Summary 更新用户资料
// @Tags User
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body auth.ProfileInput true "资料"
// @Success 200 {object} auth.User
// @Failure 401 {object} response.ErrorResponse
// @Router /api/profile [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	var in auth.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), identity, in, audit.OriginFromGin(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, user)
}
