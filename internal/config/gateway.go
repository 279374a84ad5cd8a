package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Route maps a path prefix to a downstream service.
type Route struct {
	Prefix string
	Target *url.URL
}

type GatewayConfig struct {
	AppEnv           string        `env:"APP_ENV"              envDefault:"dev"`
	HTTPAddr         string        `env:"GATEWAY_ADDR"         envDefault:":8080"`
	AuthServiceURL   string        `env:"AUTH_SERVICE_URL"     envDefault:"http://localhost:9000"`
	AuthValidatePath string        `env:"AUTH_VALIDATE_PATH"   envDefault:"/api/auth/validate"`
	AuthTimeout      time.Duration `env:"AUTH_TIMEOUT"         envDefault:"2s"`
	RejectCacheTTL   time.Duration `env:"REJECTION_CACHE_TTL"  envDefault:"0s"`
	PublicEndpoints  []string      `env:"PUBLIC_ENDPOINTS"     envSeparator:"," envDefault:"/api/auth/login,/api/auth/register,/api/auth/refresh,/api/auth/logout,/api/auth/verify-email,/api/auth/health,/api/products/**,/api/images/**,/health"`
	RawRoutes        []string      `env:"GATEWAY_ROUTES"       envSeparator:"," envDefault:"/api/auth=http://localhost:9000,/api/images=http://localhost:9001,/api/products=http://localhost:9001,/api/orders=http://localhost:9002,/api/users=http://localhost:9003"`
	CORSOrigins      []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	OTelEndpoint     string        `env:"OTEL_EXPORTER_ENDPOINT"`

	// Routes is RawRoutes parsed, longest prefix first.
	Routes []Route `env:"-"`
}

func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.PublicEndpoints = trimList(cfg.PublicEndpoints)
	cfg.CORSOrigins = trimList(cfg.CORSOrigins)

	routes, err := ParseRoutes(cfg.RawRoutes)
	if err != nil {
		return nil, err
	}
	cfg.Routes = routes

	if err := validateGatewayConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseRoutes parses "prefix=url" entries and orders them so that the most
// specific prefix is tried first.
func ParseRoutes(values []string) ([]Route, error) {
	routes := make([]Route, 0, len(values))
	for _, v := range trimList(values) {
		prefix, target, ok := strings.Cut(v, "=")
		prefix, target = strings.TrimSpace(prefix), strings.TrimSpace(target)
		if !ok || !strings.HasPrefix(prefix, "/") || target == "" {
			return nil, fmt.Errorf("GATEWAY_ROUTES: invalid entry %q, want /prefix=http://host:port", v)
		}
		u, err := url.Parse(target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("GATEWAY_ROUTES: invalid target %q", target)
		}
		routes = append(routes, Route{Prefix: strings.TrimRight(prefix, "/"), Target: u})
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	return routes, nil
}

func validateGatewayConfig(cfg *GatewayConfig) error {
	u, err := url.Parse(cfg.AuthServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AUTH_SERVICE_URL must be an absolute URL")
	}
	if !strings.HasPrefix(cfg.AuthValidatePath, "/") {
		return fmt.Errorf("AUTH_VALIDATE_PATH must start with /")
	}
	if cfg.AuthTimeout <= 0 {
		return fmt.Errorf("AUTH_TIMEOUT must be > 0")
	}
	if cfg.RejectCacheTTL < 0 {
		return fmt.Errorf("REJECTION_CACHE_TTL must be >= 0")
	}
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("GATEWAY_ROUTES must define at least one route")
	}
	return nil
}

func (c *GatewayConfig) IsProd() bool {
	return isProdLike(c.AppEnv)
}
