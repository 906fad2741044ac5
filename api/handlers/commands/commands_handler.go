package commands

import (
	"context"
	"net/http"
	"strings"

	response "opsdash/api/handlers/common"
	"opsdash/internal/audit"
	"opsdash/internal/auth"
	"opsdash/internal/command"
	"opsdash/internal/control"

	"github.com/gin-gonic/gin"
)

// Controller 自由命令执行入口
type Controller interface {
	RunFreeformCommand(ctx context.Context, identity *auth.Identity, origin audit.Origin, surface control.Surface, text string) (*command.Result, error)
}

// CommandHandler 自由命令处理器
type CommandHandler struct {
	controller Controller
}

// NewCommandHandler 创建命令处理器
func NewCommandHandler(controller Controller) *CommandHandler {
	return &CommandHandler{controller: controller}
}

// ExecuteRequest 命令执行请求
type ExecuteRequest struct {
	Command string `json:"command" binding:"max=4096"`
}

// Execute 仪表盘快捷命令
// @Summary 执行快捷命令
// @Tags Commands
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ExecuteRequest true "命令"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/commands/execute [post]
func (h *CommandHandler) Execute(c *gin.Context) {
	h.run(c, control.SurfaceQuick)
}

// Terminal 终端页面命令
// @Summary 执行终端命令
// @Tags Commands
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ExecuteRequest true "命令"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/terminal [post]
func (h *CommandHandler) Terminal(c *gin.Context) {
	h.run(c, control.SurfaceTerminal)
}

func (h *CommandHandler) run(c *gin.Context, surface control.Surface) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request: "+err.Error())
		return
	}

	// 空命令交给策略引擎拒绝并审计
	res, err := h.controller.RunFreeformCommand(c.Request.Context(), identity, audit.OriginFromGin(c), surface, strings.TrimSpace(req.Command))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	WriteResult(c, res)
}

// WriteResult 按执行状态输出结果：被拒绝返回 403，其余返回 200
func WriteResult(c *gin.Context, res *command.Result) {
	body := response.APIResponse{
		Success: res.Status == command.StatusCompleted,
		Message: res.Message,
		Data:    res,
	}
	if res.Status == command.StatusBlocked {
		body.Error = res.Reason
		c.JSON(http.StatusForbidden, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
