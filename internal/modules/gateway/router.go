package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"micromart/internal/logging"
	"micromart/internal/middleware"
	"micromart/internal/pkg/response"
	"micromart/internal/pkg/telemetry"
)

// NewRouter assembles the edge: CORS, then the auth bridge, then the proxy.
func NewRouter(bridge *Bridge, proxy *Proxy, corsOrigins []string, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestLogger(log),
		telemetry.Middleware(),
		middleware.CORS(corsOrigins),
	)

	r.GET("/health", func(c *gin.Context) {
		response.Message(c, http.StatusOK, "Gateway is running")
	})
	r.NoRoute(bridge.Middleware(), proxy.Handler())
	return r
}
