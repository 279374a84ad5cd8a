package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"micromart/internal/logging"
	"micromart/internal/pkg/response"
)

// InternalTokenHeader carries the shared secret between peer services.
const InternalTokenHeader = "X-Internal-Token"

// InternalToken protects peer-service endpoints with a static shared secret.
func InternalToken(secret string, log logging.Logger) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			logAuthFailure(c, log, http.StatusInternalServerError, "token_not_configured")
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal token is not configured")
			c.Abort()
			return
		}

		got := c.GetHeader(InternalTokenHeader)
		if got == "" {
			logAuthFailure(c, log, http.StatusUnauthorized, "missing_token")
			response.Error(c, http.StatusUnauthorized, "AUTH_MISSING", InternalTokenHeader+" header is required")
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			logAuthFailure(c, log, http.StatusForbidden, "invalid_token")
			response.Error(c, http.StatusForbidden, "AUTH_INVALID", "invalid internal token")
			c.Abort()
			return
		}

		c.Next()
	}
}

func logAuthFailure(c *gin.Context, log logging.Logger, status int, reason string) {
	log.Warn(c.Request.Context(), "internal auth failed",
		"status", status,
		"reason", reason,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(ctxRequestID),
	)
}
