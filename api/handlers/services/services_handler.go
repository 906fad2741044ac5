package services

import (
	"context"
	"net/http"

	"opsdash/api/handlers/commands"
	response "opsdash/api/handlers/common"
	"opsdash/internal/audit"
	"opsdash/internal/auth"
	"opsdash/internal/command"
	"opsdash/internal/policy"
	"opsdash/internal/servicestatus"

	"github.com/gin-gonic/gin"
)

// Controller 服务操作入口
type Controller interface {
	ControlService(ctx context.Context, identity *auth.Identity, origin audit.Origin, service string, action command.Action) (*command.Result, error)
}

// StatusReader 状态缓存读取
type StatusReader interface {
	List(ctx context.Context) ([]servicestatus.Record, error)
	Get(ctx context.Context, service string) (*servicestatus.Record, error)
}

// ServiceHandler systemd 服务处理器
type ServiceHandler struct {
	controller Controller
	status     StatusReader
}

// NewServiceHandler 创建服务处理器
func NewServiceHandler(controller Controller, status StatusReader) *ServiceHandler {
	return &ServiceHandler{controller: controller, status: status}
}

// List 列出缓存的服务状态
// @Summary 服务状态列表
// @Tags Services
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/services [get]
func (h *ServiceHandler) List(c *gin.Context) {
	records, err := h.status.List(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, records)
}

// Get 读取单个服务的缓存状态，不执行探测
// @Summary 服务缓存状态
// @Tags Services
// @Security BearerAuth
// @Produce json
// @Param name path string true "服务名"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/services/{name} [get]
func (h *ServiceHandler) Get(c *gin.Context) {
	name := c.Param("name")
	if !policy.ValidServiceName(name) {
		response.Fail(c, http.StatusBadRequest, response.CodeBadRequest, policy.ReasonInvalidService)
		return
	}
	record, err := h.status.Get(c.Request.Context(), name)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.OK(c, record)
}

// Control 执行服务操作；操作名与服务名的校验交给策略引擎，拒绝同样会被审计
// @Summary 服务生命周期操作
// @Tags Services
// @Security BearerAuth
// @Produce json
// @Param name path string true "服务名"
// @Param action path string true "start|stop|restart|enable|disable|reload|status"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/services/{name}/{action} [post]
func (h *ServiceHandler) Control(c *gin.Context) {
	identity, ok := response.MustIdentity(c)
	if !ok {
		return
	}

	res, err := h.controller.ControlService(
		c.Request.Context(),
		identity,
		audit.OriginFromGin(c),
		c.Param("name"),
		command.Action(c.Param("action")),
	)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	commands.WriteResult(c, res)
}
