package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/pose-coach/internal/logging"
)

// Recovery turns a panic anywhere in the handler chain into a 500 with the
// public "Analysis failed" body.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error("panic while serving request",
			zap.Any("panic", recovered),
			zap.String("request_id", logging.RequestIDFromContext(c.Request.Context())),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
	})
}
