package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cipherlink-backend/pkg/logger"
	"cipherlink-backend/pkg/response"
)

// Recovery recovers from panics and returns a 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))

				response.InternalError(c, "internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
