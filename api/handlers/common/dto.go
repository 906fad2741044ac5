package common

import (
	"errors"
	"net/http"

	"opsdash/internal/audit"
	"opsdash/internal/auth"
	"opsdash/internal/control"
	"opsdash/pkg/types"

	"github.com/gin-gonic/gin"
)

// APIResponse 通用响应结构，用于封装成功或失败结果。
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PaginationMeta 分页元信息。
type PaginationMeta struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_page"`
}

// ListResponse 列表响应结构，包含数据与分页信息。
type ListResponse struct {
	Items      interface{}    `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// ErrorResponse 统一错误返回结构。
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// 错误码
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeAccountDisabled  = "ACCOUNT_DISABLED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeAuditUnavailable = "AUDIT_UNAVAILABLE"
)

// NewPaginationMeta 由分页结果构造元信息。
func NewPaginationMeta(p *types.PaginationResponse) PaginationMeta {
	if p == nil {
		return PaginationMeta{}
	}
	return PaginationMeta{Page: p.Page, PageSize: p.PageSize, Total: p.Total, TotalPage: p.TotalPages}
}

// OK 返回 200 成功响应。
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// Fail 返回错误响应。
func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Success: false, Code: code, Message: message})
}

// AuditFailed 判断错误是否源自审计写入失败。
func AuditFailed(err error) bool {
	return errors.Is(err, control.ErrAuditUnavailable) || errors.Is(err, audit.ErrWriteFailed)
}

// RespondError 将领域错误映射为 HTTP 响应。
func RespondError(c *gin.Context, err error) {
	switch {
	case AuditFailed(err):
		Fail(c, http.StatusInternalServerError, CodeAuditUnavailable, "audit trail unavailable, request not completed")
	case errors.Is(err, auth.ErrInvalidCredentials):
		Fail(c, http.StatusUnauthorized, CodeUnauthorized, "invalid username or password")
	case errors.Is(err, auth.ErrUserInactive):
		Fail(c, http.StatusForbidden, CodeAccountDisabled, "account disabled")
	case errors.Is(err, auth.ErrUserNotFound):
		Fail(c, http.StatusNotFound, CodeNotFound, "user not found")
	case errors.Is(err, auth.ErrUserExists):
		Fail(c, http.StatusConflict, CodeConflict, "username or email already exists")
	case errors.Is(err, auth.ErrProtectedAccount):
		Fail(c, http.StatusForbidden, CodeForbidden, "operation not allowed on this account")
	default:
		Fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// MustIdentity 取当前身份，缺失时写 401。
func MustIdentity(c *gin.Context) (*auth.Identity, bool) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		Fail(c, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return nil, false
	}
	return identity, true
}
