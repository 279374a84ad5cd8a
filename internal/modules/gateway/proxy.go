package gateway

import (
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"micromart/internal/config"
	"micromart/internal/logging"
	"micromart/internal/pkg/response"
)

type route struct {
	prefix string
	proxy  *httputil.ReverseProxy
}

// Proxy forwards requests to the downstream service owning the longest
// matching path prefix.
type Proxy struct {
	routes []route
	log    logging.Logger
}

// NewProxy expects routes ordered longest prefix first, as ParseRoutes
// returns them.
func NewProxy(routes []config.Route, log logging.Logger) *Proxy {
	p := &Proxy{log: log}
	for _, r := range routes {
		target := r.Target
		prefix := r.Prefix
		rp := &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				pr.Out.Header.Set("X-Forwarded-Port", forwardedPort(pr.In))
				otel.GetTextMapPropagator().Inject(pr.In.Context(), propagation.HeaderCarrier(pr.Out.Header))
			},
			ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
				log.Error(req.Context(), "upstream unavailable", "prefix", prefix, "target", target.Host, "error", err)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"code":"UPSTREAM_UNAVAILABLE","message":"the requested service is unavailable"}`))
			},
		}
		p.routes = append(p.routes, route{prefix: prefix, proxy: rp})
	}
	return p
}

func (p *Proxy) match(path string) *httputil.ReverseProxy {
	for _, r := range p.routes {
		if path == r.prefix || strings.HasPrefix(path, r.prefix+"/") {
			return r.proxy
		}
	}
	return nil
}

func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rp := p.match(c.Request.URL.Path)
		if rp == nil {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "no route for path")
			return
		}
		rp.ServeHTTP(c.Writer, c.Request)
	}
}

// forwardedPort is the port the client used to reach the gateway.
func forwardedPort(r *http.Request) string {
	if _, port, err := net.SplitHostPort(r.Host); err == nil {
		return port
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if tcp, ok := addr.(*net.TCPAddr); ok {
			return strconv.Itoa(tcp.Port)
		}
	}
	if r.TLS != nil {
		return "443"
	}
	return "80"
}
