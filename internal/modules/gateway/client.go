package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"micromart/internal/pkg/telemetry"
)

var (
	// ErrUnauthenticated means the auth service rejected the token.
	ErrUnauthenticated = errors.New("gateway: unauthenticated")
	// ErrAuthUnavailable means the auth service could not give an answer.
	ErrAuthUnavailable = errors.New("gateway: auth service unavailable")
)

// Identity is the validate response of the auth service.
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
	Active      bool     `json:"active"`
}

// AuthClient calls the auth service's validate endpoint.
type AuthClient struct {
	validateURL string
	http        *http.Client
}

func NewAuthClient(baseURL, validatePath string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		validateURL: strings.TrimRight(baseURL, "/") + validatePath,
		http:        &http.Client{Timeout: timeout},
	}
}

// Validate makes exactly one remote call.
func (c *AuthClient) Validate(ctx context.Context, token string) (*Identity, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "auth.validate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthenticated
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("%w: validate answered %d", ErrAuthUnavailable, resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&id); err != nil {
		return nil, fmt.Errorf("%w: decode identity: %w", ErrAuthUnavailable, err)
	}
	if !id.Active || id.ID == "" {
		return nil, ErrUnauthenticated
	}
	return &id, nil
}
