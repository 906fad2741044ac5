package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	response "opsdash/api/handlers/common"
	auditpkg "opsdash/internal/audit"
	"opsdash/pkg/types"

	"github.com/gin-gonic/gin"
)

// Reader 审计日志只读接口
type Reader interface {
	Query(ctx context.Context, q auditpkg.Query) ([]auditpkg.Record, *types.PaginationResponse, error)
	Recent(ctx context.Context, userID string, limit int) ([]auditpkg.Record, error)
	ActivitySummary(ctx context.Context, userID string, days int) (map[auditpkg.Category]int64, error)
}

// AuditHandler 审计日志处理器
type AuditHandler struct {
	reader Reader
}

// NewAuditHandler 创建审计日志处理器
func NewAuditHandler(reader Reader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// QueryLogsRequest 查询审计日志请求
type QueryLogsRequest struct {
	Category string `form:"category"`
	UserID   string `form:"user_id"`
	Since    string `form:"since"` // RFC 3339
	Until    string `form:"until"` // RFC 3339
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ActivityResponse 用户活动概览
type ActivityResponse struct {
	UserID  string                      `json:"user_id"`
	Days    int                         `json:"days"`
	Summary map[auditpkg.Category]int64 `json:"summary"`
	Recent  []auditpkg.Record           `json:"recent"`
}

// Logs 分页查询审计日志，按时间倒序
// @Summary 查询审计日志
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param category query string false "分类"
// @Param user_id query string false "用户ID"
// @Param since query string false "起始时间 (RFC 3339)"
// @Param until query string false "截止时间 (RFC 3339)"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/audit/logs [get]
func (h *AuditHandler) Logs(c *gin.Context) {
	var req QueryLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid query: "+err.Error())
		return
	}

	q := auditpkg.Query{UserID: req.UserID, Page: req.Page, PageSize: req.PageSize}
	if req.Category != "" {
		q.Category = auditpkg.Category(req.Category)
		if !q.Category.Valid() {
			response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "unknown category: "+req.Category)
			return
		}
	}

	var err error
	if q.Since, err = parseTime(req.Since); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "since must be RFC 3339")
		return
	}
	if q.Until, err = parseTime(req.Until); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "until must be RFC 3339")
		return
	}

	records, page, err := h.reader.Query(c.Request.Context(), q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, response.ListResponse{Items: records, Pagination: response.NewPaginationMeta(page)})
}

// Activity 用户活动概览，缺省为当前用户
// @Summary 用户活动概览
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param user_id query string false "用户ID"
// @Param days query int false "统计天数" default(30)
// @Success 200 {object} ActivityResponse
// @Router /api/audit/activity [get]
func (h *AuditHandler) Activity(c *gin.Context) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}
	userID := c.DefaultQuery("user_id", identity.ID)
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "days must be a positive integer")
		return
	}

	summary, err := h.reader.ActivitySummary(c.Request.Context(), userID, days)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	recent, err := h.reader.Recent(c.Request.Context(), userID, 10)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, ActivityResponse{UserID: userID, Days: days, Summary: summary, Recent: recent})
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
