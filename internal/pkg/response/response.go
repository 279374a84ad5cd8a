package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Body of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Message writes {"message": msg}.
func Message(c *gin.Context, statusCode int, msg string) {
	c.JSON(statusCode, gin.H{"message": msg})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, ErrorBody{Code: code, Message: message})
}

func FieldError(c *gin.Context, statusCode int, code, field, message string) {
	c.JSON(statusCode, ErrorBody{Code: code, Message: message, Field: field})
}

// Unauthorized is the single rejection body for every token failure, so the
// caller cannot tell a forged token from an expired or revoked one.
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{Code: "UNAUTHORIZED", Message: "unauthorized"})
}

// Unavailable answers 503 with a Retry-After hint.
func Unavailable(c *gin.Context, retryAfter time.Duration) {
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorBody{Code: "UNAVAILABLE", Message: "service temporarily unavailable"})
}
