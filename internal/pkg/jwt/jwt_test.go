package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := New(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := New("short")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestIssueAndVerify(t *testing.T) {
	svc, _ := newTestService(t)

	token, issued, err := svc.Issue(KindAccess, "alice@example.com", "u-1", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, issued.ID)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Subject)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, KindAccess, claims.Type)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestIssue_SameInstantProducesDistinctTokens(t *testing.T) {
	svc, _ := newTestService(t)

	a, _, err := svc.Issue(KindRefresh, "alice@example.com", "u-1", time.Hour)
	require.NoError(t, err)
	b, _, err := svc.Issue(KindRefresh, "alice@example.com", "u-1", time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerify_ExpiryIsClosedOpen(t *testing.T) {
	svc, clock := newTestService(t)

	token, _, err := svc.Issue(KindAccess, "alice@example.com", "u-1", time.Minute)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Minute - time.Second)
	_, err = svc.Verify(token)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Second)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_RejectsTampering(t *testing.T) {
	svc, _ := newTestService(t)
	token, _, err := svc.Issue(KindAccess, "alice@example.com", "u-1", time.Minute)
	require.NoError(t, err)

	other, err := New("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":        "not-a-jwt",
		"empty":          "",
		"truncated":      token[:len(token)-3],
		"foreign secret": mustIssue(t, other),
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	svc, clock := newTestService(t)
	claims := &Claims{
		Type: KindAccess,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "alice@example.com",
			ExpiresAt: jwtlib.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}

	hs512, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.Verify(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresKnownKind(t *testing.T) {
	svc, clock := newTestService(t)
	claims := &Claims{
		Type: "admin",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "alice@example.com",
			ExpiresAt: jwtlib.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	_, err := svc.Sign(claims)
	assert.ErrorIs(t, err, ErrUnknownKind)

	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	claims := &Claims{
		Type:             KindAccess,
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "alice@example.com"},
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.Error(t, err)
}

func mustIssue(t *testing.T, svc *Service) string {
	t.Helper()
	tok, _, err := svc.Issue(KindAccess, "alice@example.com", "u-1", time.Hour)
	require.NoError(t, err)
	return tok
}
