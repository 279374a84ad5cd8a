// Package notification delivers verification mail through the email service.
package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"micromart/internal/logging"
)

var ErrDelivery = errors.New("notification: delivery failed")

const sendVerificationPath = "/api/email/send-verification"

// HTTPMailer calls the email service's send-verification endpoint.
type HTTPMailer struct {
	baseURL        string
	internalSecret string
	client         *http.Client
}

func NewHTTPMailer(baseURL, internalSecret string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPMailer{
		baseURL:        strings.TrimRight(baseURL, "/"),
		internalSecret: internalSecret,
		client:         &http.Client{Timeout: timeout},
	}
}

func (m *HTTPMailer) SendVerification(ctx context.Context, email, token string) error {
	q := url.Values{}
	q.Set("email", email)
	q.Set("verificationToken", token)
	endpoint := m.baseURL + sendVerificationPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Internal-Token", m.internalSecret)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: email service answered %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}

// ConsoleMailer logs the verification link instead of sending it. For local
// development only: the link contains a live token.
type ConsoleMailer struct {
	publicBaseURL string
	log           logging.Logger
}

func NewConsoleMailer(publicBaseURL string, log logging.Logger) *ConsoleMailer {
	return &ConsoleMailer{publicBaseURL: strings.TrimRight(publicBaseURL, "/"), log: log}
}

func (m *ConsoleMailer) SendVerification(ctx context.Context, email, token string) error {
	m.log.Info(ctx, "verification mail (dev console)", "email", email, "link", VerificationLink(m.publicBaseURL, token))
	return nil
}

// VerificationLink is the URL a user follows to verify their address.
func VerificationLink(publicBaseURL, token string) string {
	return publicBaseURL + "/api/auth/verify-email?token=" + url.QueryEscape(token)
}
