package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"push-device-service/internal/apierror"
)

// RequestLogger logs one line per request through the global zap logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()),
		}
		if caller, ok := CallerFromContext(c); ok {
			fields = append(fields, zap.String("username", caller.Username))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			zap.L().Error("request", fields...)
		case status >= http.StatusBadRequest:
			zap.L().Info("request", fields...)
		default:
			zap.L().Debug("request", fields...)
		}
	}
}

// Recovery turns panics into 500 responses and logs them.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		zap.L().Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		err := apierror.HandleException(apierror.Newf(apierror.KindServer, "panic: %v", recovered), apierror.MsgInternal)
		c.AbortWithStatusJSON(err.Status, err.Body)
	})
}
