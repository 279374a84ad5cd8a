package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micromart/internal/config"
	"micromart/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const goodToken = "good-token"

// fakeAuth answers validate like the auth service: 200 for goodToken, 401
// for anything else.
func fakeAuth(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/auth/validate", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Identity{ID: "u-1", Username: "alice@example.com", Email: "alice@example.com", Permissions: []string{}, Active: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// upstream echoes the headers it received.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":   r.URL.Path,
			"userId": r.Header.Get(HeaderUserID),
			"email":  r.Header.Get(HeaderUserEmail),
			"role":   r.Header.Get("X-User-Role"),
			"fwHost": r.Header.Get("X-Forwarded-Host"),
			"fwPort": r.Header.Get("X-Forwarded-Port"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, authURL string, routes map[string]string) (*gin.Engine, *Bridge) {
	t.Helper()
	var raw []string
	for prefix, target := range routes {
		raw = append(raw, prefix+"="+target)
	}
	parsed, err := config.ParseRoutes(raw)
	require.NoError(t, err)

	client := NewAuthClient(authURL, "/api/auth/validate", time.Second)
	bridge := NewBridge(client, []string{"/api/auth/login", "/api/products/**", "/health"}, logging.Nop())
	t.Cleanup(bridge.Close)
	return NewRouter(bridge, NewProxy(parsed, logging.Nop()), nil, logging.Nop()), bridge
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "localhost:8080"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func echoed(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestBridge_ForwardsVerifiedIdentity(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	orders := upstream(t)
	r, _ := newGateway(t, auth.URL, map[string]string{"/api/orders": orders.URL})

	w := get(r, "/api/orders/42", map[string]string{
		"Authorization": "Bearer " + goodToken,
		"X-User-Id":     "spoofed",
		"X-User-Role":   "admin",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := echoed(t, w)
	assert.Equal(t, "/api/orders/42", got["path"])
	assert.Equal(t, "u-1", got["userId"])
	assert.Equal(t, "alice@example.com", got["email"])
	assert.Empty(t, got["role"], "client X-User-* headers must be dropped")
	assert.Equal(t, "localhost:8080", got["fwHost"])
	assert.Equal(t, "8080", got["fwPort"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestBridge_OneValidateCallPerRequest(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	orders := upstream(t)
	r, _ := newGateway(t, auth.URL, map[string]string{"/api/orders": orders.URL})

	for i := 0; i < 3; i++ {
		w := get(r, "/api/orders", map[string]string{"Authorization": "Bearer " + goodToken})
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestBridge_Rejections(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	orders := upstream(t)
	r, _ := newGateway(t, auth.URL, map[string]string{"/api/orders": orders.URL})

	w := get(r, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = get(r, "/api/orders", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int32(0), calls.Load(), "no remote call without a bearer token")

	w = get(r, "/api/orders", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBridge_PublicPathsSkipValidation(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	products := upstream(t)
	r, _ := newGateway(t, auth.URL, map[string]string{"/api/products": products.URL})

	w := get(r, "/api/products/7/reviews", map[string]string{"X-User-Id": "spoofed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, echoed(t, w)["userId"])

	w = get(r, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBridge_AuthUnreachableIs503(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	orders := upstream(t)
	r, _ := newGateway(t, auth.URL, map[string]string{"/api/orders": orders.URL})
	auth.Close()

	w := get(r, "/api/orders", map[string]string{"Authorization": "Bearer " + goodToken})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestBridge_RejectionCache(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	orders := upstream(t)
	r, bridge := newGateway(t, auth.URL, map[string]string{"/api/orders": orders.URL})
	require.NoError(t, bridge.WithRejectionCache(time.Minute))

	w := get(r, "/api/orders", map[string]string{"Authorization": "Bearer forged"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	bridge.rejected.Wait()

	w = get(r, "/api/orders", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int32(1), calls.Load())

	for i := 0; i < 2; i++ {
		w = get(r, "/api/orders", map[string]string{"Authorization": "Bearer " + goodToken})
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int32(3), calls.Load(), "accepted tokens are never cached")
}

func TestBridge_IsPublic(t *testing.T) {
	b := NewBridge(nil, []string{"/api/auth/login", "/api/products/**", "/api/images/*.png"}, logging.Nop())

	tests := map[string]bool{
		"/api/auth/login":     true,
		"/api/auth/login/x":   false,
		"/api/products":       true,
		"/api/products/1/a":   true,
		"/api/productsX":      false,
		"/api/images/cat.png": true,
		"/api/images/a/b.png": false,
		"/api/orders":         false,
	}
	for p, want := range tests {
		assert.Equal(t, want, b.IsPublic(p), p)
	}
}

func TestProxy_UnknownRouteAndDeadUpstream(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	r, _ := newGateway(t, auth.URL, map[string]string{"/api/products": deadURL})

	w := get(r, "/api/products/1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "UPSTREAM_UNAVAILABLE")

	w = get(r, "/api/elsewhere", map[string]string{"Authorization": "Bearer " + goodToken})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxy_LongestPrefixWins(t *testing.T) {
	images := upstream(t)
	products := upstream(t)
	routes, err := config.ParseRoutes([]string{
		"/api=" + products.URL,
		"/api/images=" + images.URL,
	})
	require.NoError(t, err)
	p := NewProxy(routes, logging.Nop())

	assert.Same(t, p.routes[0].proxy, p.match("/api/images/1"))
	assert.Same(t, p.routes[1].proxy, p.match("/api/orders"))
	assert.Nil(t, p.match("/other"))
}

func TestAuthClient_DecodesIdentity(t *testing.T) {
	var calls atomic.Int32
	auth := fakeAuth(t, &calls)
	c := NewAuthClient(auth.URL+"/", "/api/auth/validate", time.Second)

	id, err := c.Validate(context.Background(), goodToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.ID)
	assert.True(t, id.Active)

	_, err = c.Validate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthClient_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewAuthClient(srv.URL, "/api/auth/validate", time.Second).Validate(context.Background(), "t")
	assert.ErrorIs(t, err, ErrAuthUnavailable)
}
