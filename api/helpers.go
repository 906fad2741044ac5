package api

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"opsdash/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, HealthResponse{Status: "healthy", Service: "opsdash"})
	}
}

// ReadinessCheck 就绪检查。审计依赖数据库，数据库不可用即不可接收请求；
// Redis 只影响令牌吊销，不可用时仅降级
// @Summary 服务就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(503, ReadinessResponse{Status: "not_ready", Reason: "database connection error"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			c.JSON(503, ReadinessResponse{Status: "not_ready", Reason: "database ping failed"})
			return
		}

		resp := ReadinessResponse{Status: "ready", Database: "connected", Redis: "disabled"}
		if rdb != nil {
			resp.Redis = "connected"
			if err := rdb.Ping(ctx).Err(); err != nil {
				resp.Redis = "degraded"
			}
		}
		c.JSON(200, resp)
	}
}

// --- 环境变量辅助函数 ---

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	return parseAddrList(os.Getenv(key))
}

// stringInSlice 判断字符串是否存在于切片中
func stringInSlice(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}

// --- Redis 配置辅助函数 ---

// normalizeRedisConfig 归一化 Redis 配置，支持 REDIS_ADDR 等环境变量回退
func normalizeRedisConfig(cfg config.RedisConfig) config.RedisConfig {
	resolved := cfg
	resolved.Host = strings.TrimSpace(resolved.Host)
	resolved.Mode = strings.TrimSpace(strings.ToLower(resolved.Mode))

	if resolved.Mode == "" {
		resolved.Mode = "standalone"
	}

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" && resolved.Mode == "standalone" {
		host, port := parseRedisAddr(addr)
		if host != "" {
			resolved.Host = host
		}
		if port > 0 {
			resolved.Port = port
		}
	}
	if resolved.Host == "" {
		resolved.Host = "localhost"
	}
	if resolved.Port == 0 {
		resolved.Port = 6379
	}

	if resolved.Mode == "sentinel" && len(resolved.SentinelAddrs) == 0 {
		resolved.SentinelAddrs = getEnvList("APP_REDIS_SENTINEL_ADDRS")
	}
	if resolved.Mode == "cluster" && len(resolved.ClusterAddrs) == 0 {
		resolved.ClusterAddrs = getEnvList("APP_REDIS_CLUSTER_ADDRS")
	}

	if resolved.PoolSize <= 0 {
		resolved.PoolSize = 10
	}
	if resolved.MinIdleConns <= 0 {
		resolved.MinIdleConns = 2
	}
	return resolved
}

// parseAddrList 解析逗号分隔的地址列表
func parseAddrList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if addr := strings.TrimSpace(p); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// parseRedisAddr 解析 host:port
func parseRedisAddr(addr string) (string, int) {
	if strings.TrimSpace(addr) == "" {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr), 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
