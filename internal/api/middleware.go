package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func RequestLoggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		requestID := uuid.NewString()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.WithField("request_id", requestID).Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}
