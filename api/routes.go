package api

import (
	"opsdash/internal/auth"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	apiGroup := router.Group("/api")
	apiGroup.Use(container.RateLimiter.Middleware())

	// 认证 API（公开，不需要 JWT）
	registerAuthRoutes(apiGroup, handlers)

	protected := apiGroup.Group("")
	protected.Use(auth.AuthMiddleware(container.JWTService, container.Identities))
	registerAPIRoutes(protected, handlers)
}

// registerAuthRoutes 注册认证相关路由（公开）
func registerAuthRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	apiGroup.POST("/auth/login", h.Auth.Login)
}

// registerAPIRoutes 注册需要认证的 API 路由
func registerAPIRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	adminGuard := auth.RequireRole(auth.RoleAdministrator)

	apiGroup.POST("/auth/logout", h.Auth.Logout)
	apiGroup.GET("/auth/me", h.Auth.Me)

	apiGroup.GET("/profile", h.User.GetProfile)
	apiGroup.PUT("/profile", h.User.UpdateProfile)

	registerCommandRoutes(apiGroup, h)
	registerServiceRoutes(apiGroup, h)
	registerAuditRoutes(apiGroup, h, adminGuard)
	registerAdminRoutes(apiGroup, h, adminGuard)
}

// registerCommandRoutes 自由命令入口不加角色守卫：权限由策略引擎判定，拒绝同样要审计
func registerCommandRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	apiGroup.POST("/commands/execute", h.Commands.Execute)
	apiGroup.POST("/terminal", h.Commands.Terminal)
}

func registerServiceRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	servicesGroup := apiGroup.Group("/services")
	{
		servicesGroup.GET("", h.Services.List)
		servicesGroup.GET("/:name", h.Services.Get)
		servicesGroup.POST("/:name/:action", h.Services.Control)
	}
}

func registerAuditRoutes(apiGroup *gin.RouterGroup, h *Handlers, adminGuard gin.HandlerFunc) {
	auditGroup := apiGroup.Group("/audit", adminGuard)
	{
		auditGroup.GET("/logs", h.Audit.Logs)
		auditGroup.GET("/activity", h.Audit.Activity)
	}
}

func registerAdminRoutes(apiGroup *gin.RouterGroup, h *Handlers, adminGuard gin.HandlerFunc) {
	usersGroup := apiGroup.Group("/admin/users", adminGuard)
	{
		usersGroup.GET("", h.User.ListUsers)
		usersGroup.POST("", h.User.CreateUser)
		usersGroup.GET("/:id", h.User.GetUser)
		usersGroup.PUT("/:id", h.User.UpdateUser)
		usersGroup.DELETE("/:id", h.User.DeleteUser)
	}
}
