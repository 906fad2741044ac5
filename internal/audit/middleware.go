package audit

import (
	"strings"

	"opsdash/internal/logger"

	"github.com/gin-gonic/gin"
)

// OriginFromGin 从请求中提取审计来源
func OriginFromGin(c *gin.Context) Origin {
	return Origin{
		Address:   getClientIP(c),
		UserAgent: c.Request.UserAgent(),
		RequestID: logger.GetRequestID(c.Request.Context()),
	}
}

// getClientIP X-Forwarded-For 取第一个地址，其次 X-Real-IP，最后 RemoteAddr
func getClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	return c.ClientIP()
}
