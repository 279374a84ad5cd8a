package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"micromart/internal/logging"
	"micromart/internal/pkg/perimeter"
	"micromart/internal/pkg/response"
)

// Perimeter rejects requests that do not arrive from a trusted hop. It runs
// before any identity check. Paths listed in exempt are let through.
func Perimeter(guard *perimeter.Guard, exempt []string, log logging.Logger) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		if err := guard.Check(PerimeterRequest(c.Request)); err != nil {
			log.Warn(c.Request.Context(), "perimeter denied",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", c.GetString(ctxRequestID),
				"error", err,
			)
			response.Error(c, http.StatusForbidden, "PERIMETER_DENIED", "request origin is not trusted")
			c.Abort()
			return
		}
		c.Next()
	}
}

// PerimeterRequest collects the connection metadata of r. The server name
// and port come from the Host header; when Host has no port the local
// listener port is used.
func PerimeterRequest(r *http.Request) perimeter.Request {
	name, port := r.Host, 0
	if h, p, err := net.SplitHostPort(r.Host); err == nil {
		name = h
		port, _ = strconv.Atoi(p)
	}
	if port == 0 {
		if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
			if tcp, ok := addr.(*net.TCPAddr); ok {
				port = tcp.Port
			}
		}
	}

	return perimeter.Request{
		ServerName:    name,
		ServerPort:    port,
		ForwardedHost: r.Header.Get("X-Forwarded-Host"),
		ForwardedPort: r.Header.Get("X-Forwarded-Port"),
		RemoteAddr:    r.RemoteAddr,
	}
}
