// Package jwt signs and verifies the claims payload carried inside every
// token the auth service issues. It is transport agnostic: encryption of the
// signed string is done elsewhere.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HS256 key.
const MinSecretLength = 32

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	ErrUnknownKind  = errors.New("unknown token kind")
)

// Kind discriminates the token variants. It is serialized in the "type"
// claim and checked on every decode so one kind can never stand in for
// another.
type Kind string

const (
	KindAccess            Kind = "access"
	KindRefresh           Kind = "refresh"
	KindEmailVerification Kind = "email_verification"
)

func (k Kind) valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindEmailVerification:
		return true
	}
	return false
}

type Claims struct {
	UserID string `json:"userId,omitempty"`
	Type   Kind   `json:"type"`
	jwtlib.RegisteredClaims
}

// Service is an HS256 signer/verifier bound to one process-wide secret.
type Service struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(secret string, opts ...Option) (*Service, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	s := &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue builds and signs a token of the given kind valid for ttl from now.
func (s *Service) Issue(kind Kind, subject, userID string, ttl time.Duration) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := s.Sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (s *Service) Sign(claims *Claims) (string, error) {
	if !claims.Type.valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, claims.Type)
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks structure, signature and expiry. Every failure is reported as
// ErrInvalidToken or ErrExpiredToken without further detail.
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// Validity is [iat, exp): a token expiring exactly now is already expired,
	// and the check does not rely on the library's own leeway rules.
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	if !claims.Type.valid() || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
