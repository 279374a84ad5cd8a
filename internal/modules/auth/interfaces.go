package auth

import (
	"context"
	"time"

	"micromart/internal/domain"
	"micromart/internal/pkg/jwt"
)

// UserStore is the Credential Store as seen by the auth service.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	MarkEmailVerified(ctx context.Context, email string) (bool, error)
	AddToWishlist(ctx context.Context, userID, productID string) (bool, error)
	RemoveFromWishlist(ctx context.Context, userID, productID string) (bool, error)
}

// RevocationStore is a set of revoked wire tokens with bounded retention.
// Add must be atomic: of several concurrent adds of one token exactly one
// reports added=true.
type RevocationStore interface {
	Add(ctx context.Context, token string) (added bool, err error)
	Contains(ctx context.Context, token string) (bool, error)
}

type TokenCodec interface {
	Issue(kind jwt.Kind, subject, userID string, ttl time.Duration) (string, *jwt.Claims, error)
	Verify(token string) (*jwt.Claims, error)
}

type TokenCipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Mailer delivers the out-of-band verification token.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}
