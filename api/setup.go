package api

import (
	"opsdash/internal/metrics"
	middlewarepkg "opsdash/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 设置并返回 Gin 路由
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middlewarepkg.RequestIDMiddleware(),
		RequestLogger(),
		CORS(),
		metrics.PrometheusMiddleware(),
	)

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.DB, container.RedisClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router, container, container.InitHandlers())
	return router
}
