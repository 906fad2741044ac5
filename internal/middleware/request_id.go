package middleware

import (
	"opsdash/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HTTP 头常量
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

const maxInboundIDLen = 64

// RequestIDMiddleware 为每个请求分配请求 ID，写入 context 供日志与审计使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 支持上游传递，过长的值视为无效
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > maxInboundIDLen {
			requestID = uuid.New().String()
		}
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" || len(traceID) > maxInboundIDLen {
			traceID = requestID
		}

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		ctx = logger.WithTraceID(ctx, traceID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)
		c.Next()
	}
}

// GetRequestIDFromGin 从 Gin 上下文获取请求 ID
func GetRequestIDFromGin(c *gin.Context) string {
	return logger.GetRequestID(c.Request.Context())
}
