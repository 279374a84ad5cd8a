package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"micromart/internal/logging"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// RequestLogger assigns a request id, logs every request once it completes
// and recovers from panics.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)

		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error(c.Request.Context(), "panic",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", id,
					"error", fmt.Sprintf("%v", recovered),
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "internal server error",
				})
			}

			status := c.Writer.Status()
			args := []any{
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", status,
				"client_ip", c.ClientIP(),
				"request_id", id,
				"latency", time.Since(start),
			}
			for _, err := range c.Errors {
				args = append(args, "error", err.Error())
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Error(c.Request.Context(), "request", args...)
			case status >= http.StatusBadRequest:
				log.Warn(c.Request.Context(), "request", args...)
			default:
				log.Info(c.Request.Context(), "request", args...)
			}
		}()

		c.Next()
	}
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
