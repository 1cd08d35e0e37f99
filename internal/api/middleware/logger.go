package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/pkg/logger"
)

// Logger HTTP 요청 로깅 미들웨어
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if userID, ok := c.Get(ContextUserID); ok {
			kv = append(kv, "userId", userID)
		}

		// 토큰이 쿼리에 실릴 수 있어 쿼리 문자열은 남기지 않는다
		switch {
		case c.Writer.Status() >= 500:
			logger.Error("HTTP Request", kv...)
		case c.Writer.Status() >= 400:
			logger.Warn("HTTP Request", kv...)
		default:
			logger.Info("HTTP Request", kv...)
		}
	}
}
