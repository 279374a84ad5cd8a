package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"micromart/internal/pkg/perimeter"
)

const (
	defaultJWTSecret       = "change-me-jwt-secret-at-least-32-bytes"
	defaultEncryptionKey   = "change-me-16byte"
	defaultInternalSecret  = "change-me-internal-secret"
	minJWTSecretLength     = 32
	CipherModeECB          = "ecb"
	CipherModeGCM          = "gcm"
	RevocationBackendSQL   = "sql"
	RevocationBackendRedis = "redis"
)

// AuthConfig is the process-wide configuration of the auth service. It is
// loaded once in main and handed to constructors; nothing reads env later.
type AuthConfig struct {
	AppEnv      string `env:"APP_ENV"      envDefault:"dev"`
	HTTPAddr    string `env:"HTTP_ADDR"    envDefault:":9000"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"micromart.db"`

	JWTSecret       string        `env:"JWT_SECRET"           envDefault:"change-me-jwt-secret-at-least-32-bytes"`
	AccessTTL       time.Duration `env:"JWT_ACCESS_TTL"       envDefault:"15m"`
	RefreshTTL      time.Duration `env:"JWT_REFRESH_TTL"      envDefault:"24h"`
	VerificationTTL time.Duration `env:"JWT_VERIFICATION_TTL" envDefault:"24h"`

	EncryptionKey string `env:"TOKEN_ENCRYPTION_KEY" envDefault:"change-me-16byte"`
	CipherMode    string `env:"TOKEN_CIPHER_MODE"    envDefault:"ecb"`

	RevocationBackend   string        `env:"REVOCATION_BACKEND"   envDefault:"sql"`
	RevocationRetention time.Duration `env:"REVOCATION_RETENTION" envDefault:"24h"`
	RedisAddr           string        `env:"REDIS_ADDR"           envDefault:"localhost:6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB"             envDefault:"0"`
	StorageTimeout      time.Duration `env:"STORAGE_TIMEOUT"      envDefault:"2s"`

	PerimeterTrusted       []string `env:"PERIMETER_TRUSTED"        envSeparator:"," envDefault:"localhost:8080,localhost:9002,localhost:9000"`
	PerimeterTrustLoopback bool     `env:"PERIMETER_TRUST_LOOPBACK" envDefault:"false"`
	PerimeterExemptPaths   []string `env:"PERIMETER_EXEMPT_PATHS"   envSeparator:"," envDefault:"/api/auth/validate,/api/auth/health"`

	InternalSecret  string `env:"INTERNAL_SECRET"   envDefault:"change-me-internal-secret"`
	EmailServiceURL string `env:"EMAIL_SERVICE_URL"`
	EmailDevConsole bool   `env:"EMAIL_DEV_CONSOLE" envDefault:"true"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"   envDefault:"http://localhost:8080"`

	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`

	// TrustedEndpoints is PerimeterTrusted after parsing.
	TrustedEndpoints []perimeter.Endpoint `env:"-"`
}

// LoadEnvFile loads a dotenv file if it exists. A missing file is not an
// error: containers usually get their environment directly.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func LoadAuthConfig() (*AuthConfig, error) {
	cfg := &AuthConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.CipherMode = strings.ToLower(strings.TrimSpace(cfg.CipherMode))
	cfg.RevocationBackend = strings.ToLower(strings.TrimSpace(cfg.RevocationBackend))
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	trusted, err := perimeter.ParseEndpoints(cfg.PerimeterTrusted)
	if err != nil {
		return nil, fmt.Errorf("PERIMETER_TRUSTED: %w", err)
	}
	cfg.TrustedEndpoints = trusted
	cfg.PerimeterExemptPaths = trimList(cfg.PerimeterExemptPaths)

	if err := validateAuthConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateAuthConfig(cfg *AuthConfig) error {
	if cfg.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("JWT_REFRESH_TTL must be > 0")
	}
	if cfg.VerificationTTL <= 0 {
		return fmt.Errorf("JWT_VERIFICATION_TTL must be > 0")
	}
	if cfg.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be > 0")
	}
	// A revoked token must never outlive its blacklist entry.
	if cfg.RevocationRetention < max(cfg.AccessTTL, cfg.RefreshTTL) {
		return fmt.Errorf("REVOCATION_RETENTION (%s) must be >= the longest token lifetime (%s)",
			cfg.RevocationRetention, max(cfg.AccessTTL, cfg.RefreshTTL))
	}
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	switch len(cfg.EncryptionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 16, 24 or 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if cfg.CipherMode != CipherModeECB && cfg.CipherMode != CipherModeGCM {
		return fmt.Errorf("TOKEN_CIPHER_MODE must be one of: ecb, gcm")
	}
	if cfg.RevocationBackend != RevocationBackendSQL && cfg.RevocationBackend != RevocationBackendRedis {
		return fmt.Errorf("REVOCATION_BACKEND must be one of: sql, redis")
	}
	if cfg.RevocationBackend == RevocationBackendRedis && strings.TrimSpace(cfg.RedisAddr) == "" {
		return fmt.Errorf("REDIS_ADDR must be set when REVOCATION_BACKEND=redis")
	}
	if len(cfg.TrustedEndpoints) == 0 && !cfg.PerimeterTrustLoopback {
		return fmt.Errorf("PERIMETER_TRUSTED must list at least one host:port")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.EncryptionKey, defaultEncryptionKey) {
			return fmt.Errorf("in prod/release TOKEN_ENCRYPTION_KEY must be set and not default")
		}
		if isEmptyOrDefault(cfg.InternalSecret, defaultInternalSecret) {
			return fmt.Errorf("in prod/release INTERNAL_SECRET must be set and not default")
		}
	}

	return nil
}

// IsProd reports whether the service runs with production settings.
func (c *AuthConfig) IsProd() bool {
	return isProdLike(c.AppEnv)
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
