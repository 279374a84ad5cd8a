package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
	"github.com/zeebo/blake3"

	"micromart/internal/logging"
	"micromart/internal/pkg/response"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"

	userHeaderPrefix = "X-User-"
	ctxIdentity      = "identity"
)

// Validator resolves a bearer token to an identity.
type Validator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// Bridge authenticates edge requests against the auth service and forwards
// the verified identity downstream as X-User-* headers.
type Bridge struct {
	validator  Validator
	public     []string
	log        logging.Logger
	retryAfter time.Duration

	// rejected remembers tokens the auth service has already turned down.
	// Nil when disabled.
	rejected  *ristretto.Cache[string, struct{}]
	rejectTTL time.Duration
}

func NewBridge(v Validator, publicPatterns []string, log logging.Logger) *Bridge {
	return &Bridge{validator: v, public: publicPatterns, log: log, retryAfter: 2 * time.Second}
}

// WithRejectionCache enables caching of rejected tokens for ttl. A rejection
// is final for a token, so this never delays a revocation.
func (b *Bridge) WithRejectionCache(ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return err
	}
	b.rejected = cache
	b.rejectTTL = ttl
	return nil
}

func (b *Bridge) Close() {
	if b.rejected != nil {
		b.rejected.Close()
	}
}

// IsPublic reports whether p matches one of the public patterns. A pattern
// ending in "/**" matches its prefix and everything below it; other patterns
// use path.Match.
func (b *Bridge) IsPublic(p string) bool {
	for _, pattern := range b.public {
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func (b *Bridge) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		stripUserHeaders(c.Request.Header)

		if b.IsPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c)
			return
		}

		key := digest(token)
		if b.rejected != nil {
			if _, hit := b.rejected.Get(key); hit {
				response.Unauthorized(c)
				return
			}
		}

		id, err := b.validator.Validate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnauthenticated):
			if b.rejected != nil {
				b.rejected.SetWithTTL(key, struct{}{}, 1, b.rejectTTL)
			}
			response.Unauthorized(c)
			return
		default:
			b.log.Error(c.Request.Context(), "token validation failed", "path", c.Request.URL.Path, "error", err)
			response.Unavailable(c, b.retryAfter)
			return
		}

		c.Request.Header.Set(HeaderUserID, id.ID)
		c.Request.Header.Set(HeaderUserEmail, id.Email)
		c.Set(ctxIdentity, id)
		c.Next()
	}
}

// IdentityFrom returns the identity attached by the bridge, if any.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

// stripUserHeaders drops client-supplied identity headers so only the bridge
// can set them.
func stripUserHeaders(h http.Header) {
	for k := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), userHeaderPrefix) {
			delete(h, k)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func digest(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
