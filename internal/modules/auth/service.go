package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"micromart/internal/domain"
	"micromart/internal/logging"
	"micromart/internal/pkg/jwt"
	"micromart/internal/pkg/validator"
	"micromart/internal/repository"
)

type Config struct {
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	VerificationTTL time.Duration
	StorageTimeout  time.Duration
	BcryptCost      int
}

// Service is the Session Manager: it issues, validates, rotates and revokes
// tokens and owns account registration and verification.
type Service struct {
	users   UserStore
	revoked RevocationStore
	codec   TokenCodec
	cipher  TokenCipher
	mailer  Mailer
	log     logging.Logger
	cfg     Config

	// compared against when the email is unknown so both paths cost a bcrypt
	dummyHash []byte
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type LoginResult struct {
	User *domain.User
	TokenPair
}

// Identity is what a valid access token proves.
type Identity struct {
	UserID string
	Email  string
}

func NewService(
	users UserStore,
	revoked RevocationStore,
	codec TokenCodec,
	cipher TokenCipher,
	mailer Mailer,
	log logging.Logger,
	cfg Config,
) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 2 * time.Second
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	return &Service{
		users:     users,
		revoked:   revoked,
		codec:     codec,
		cipher:    cipher,
		mailer:    mailer,
		log:       log,
		cfg:       cfg,
		dummyHash: dummy,
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, storageErr("load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrUnverifiedAccount
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{User: user, TokenPair: pair}, nil
}

// Validate resolves an access token to an identity. Revocation is checked
// before any cryptographic work.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}
	if err := s.ensureNotRevoked(ctx, accessToken); err != nil {
		return nil, err
	}

	claims, err := s.open(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != jwt.KindAccess {
		return nil, ErrTokenInvalid
	}
	return &Identity{UserID: claims.UserID, Email: claims.Subject}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A token can be rotated at most once, even under
// concurrent calls.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, ErrTokenInvalid
	}
	if err := s.ensureNotRevoked(ctx, refreshToken); err != nil {
		return nil, err
	}

	claims, err := s.open(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != jwt.KindRefresh {
		return nil, ErrTokenInvalid
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(sctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, storageErr("load user", err)
	}

	added, err := s.revoked.Add(sctx, refreshToken)
	if err != nil {
		return nil, storageErr("revoke refresh token", err)
	}
	if !added {
		s.log.Warn(ctx, "refresh token reuse", "user_id", user.ID)
		return nil, ErrTokenRevoked
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, TokenPair: pair}, nil
}

// Logout revokes every non-empty token it is given. Tokens that are already
// revoked, expired or malformed are accepted silently.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	for _, tok := range []string{accessToken, refreshToken} {
		if tok == "" {
			continue
		}
		if _, err := s.revoked.Add(sctx, tok); err != nil {
			return storageErr("revoke token", err)
		}
	}
	return nil
}

// Register validates and stores a new, unverified account and sends it a
// verification token. Mail delivery failures do not fail registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if fe := validator.First(req); fe != nil {
		return nil, &ValidationError{Field: fe.Field, Message: fe.Message}
	}
	if req.Password != req.ConfirmPassword {
		return nil, &ValidationError{Field: "confirmPassword", Message: "must match password"}
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	exists, err := s.users.ExistsByEmail(sctx, req.Email)
	if err != nil {
		return nil, storageErr("check email", err)
	}
	if exists {
		return nil, ErrDuplicateAccount
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        domain.NormalizeEmail(req.Email),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Wishlist:     []string{},
	}
	if err := s.users.Create(sctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, storageErr("create user", err)
	}

	token, _, err := s.codec.Issue(jwt.KindEmailVerification, user.Email, user.ID, s.cfg.VerificationTTL)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}
	if err := s.mailer.SendVerification(ctx, user.Email, token); err != nil {
		s.log.Warn(ctx, "verification mail not delivered", "user_id", user.ID, "error", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// VerifyEmail marks the token's account as verified. It returns false for a
// bad token, an unknown account or an account that is already verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (bool, error) {
	claims, err := s.codec.Verify(token)
	if err != nil || claims.Type != jwt.KindEmailVerification {
		return false, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	changed, err := s.users.MarkEmailVerified(sctx, claims.Subject)
	if err != nil {
		return false, storageErr("verify email", err)
	}
	return changed, nil
}

func (s *Service) Wishlist(ctx context.Context, userID string) ([]string, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Wishlist, nil
}

func (s *Service) AddToWishlist(ctx context.Context, userID, productID string) (bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	added, err := s.users.AddToWishlist(sctx, userID, productID)
	return added, s.wishlistErr(err)
}

func (s *Service) RemoveFromWishlist(ctx context.Context, userID, productID string) (bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	removed, err := s.users.RemoveFromWishlist(sctx, userID, productID)
	return removed, s.wishlistErr(err)
}

// UserByEmail serves peer services behind the internal token.
func (s *Service) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("load user", err)
	}
	return user, nil
}

func (s *Service) user(ctx context.Context, userID string) (*domain.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByID(sctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("load user", err)
	}
	return user, nil
}

func (s *Service) wishlistErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	default:
		return storageErr("edit wishlist", err)
	}
}

func (s *Service) issuePair(user *domain.User) (TokenPair, error) {
	access, err := s.seal(jwt.KindAccess, user, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.seal(jwt.KindRefresh, user, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// seal signs then encrypts; the ciphertext is the only form that leaves the
// service.
func (s *Service) seal(kind jwt.Kind, user *domain.User, ttl time.Duration) (string, error) {
	signed, _, err := s.codec.Issue(kind, user.Email, user.ID, ttl)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	sealed, err := s.cipher.Encrypt(signed)
	if err != nil {
		return "", fmt.Errorf("encrypt %s token: %w", kind, err)
	}
	return sealed, nil
}

// open decrypts and verifies. Failure detail is deliberately dropped.
func (s *Service) open(token string) (*jwt.Claims, error) {
	signed, err := s.cipher.Decrypt(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, err := s.codec.Verify(signed)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) ensureNotRevoked(ctx context.Context, token string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	revoked, err := s.revoked.Contains(sctx, token)
	if err != nil {
		return storageErr("check revocation", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StorageTimeout)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
