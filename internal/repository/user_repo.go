package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"micromart/internal/domain"
)

// wishlist edits retry this many times when another writer wins the race.
const wishlistCASAttempts = 3

type UserRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

type userModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Email         string    `gorm:"column:email"`
	PasswordHash  string    `gorm:"column:password_hash"`
	FirstName     string    `gorm:"column:first_name"`
	LastName      string    `gorm:"column:last_name"`
	EmailVerified bool      `gorm:"column:email_verified"`
	Wishlist      string    `gorm:"column:wishlist"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

func toDomainUser(m userModel) (*domain.User, error) {
	wishlist, err := decodeWishlist(m.Wishlist)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", m.ID, err)
	}
	return &domain.User{
		ID:            m.ID,
		Email:         m.Email,
		PasswordHash:  m.PasswordHash,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		EmailVerified: m.EmailVerified,
		Wishlist:      wishlist,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func toUserModel(u *domain.User) (userModel, error) {
	wishlist, err := encodeWishlist(u.Wishlist)
	if err != nil {
		return userModel{}, err
	}
	return userModel{
		ID:            u.ID,
		Email:         domain.NormalizeEmail(u.Email),
		PasswordHash:  u.PasswordHash,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
		Wishlist:      wishlist,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}, nil
}

// Create inserts u, assigning an ID and timestamps when unset. A second
// account with the same normalized email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	now := r.now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	m, err := toUserModel(u)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	created, err := toDomainUser(m)
	if err != nil {
		return err
	}
	*u = *created
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var m userModel
	tx := r.db.WithContext(ctx).
		Where("email = ?", domain.NormalizeEmail(email)).
		First(&m)
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	return toDomainUser(m)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var m userModel
	tx := r.db.WithContext(ctx).Where("id = ?", id).First(&m)
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	return toDomainUser(m)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	tx := r.db.WithContext(ctx).Model(&userModel{}).
		Where("email = ?", domain.NormalizeEmail(email)).
		Count(&count)
	if tx.Error != nil {
		return false, translate(tx.Error)
	}
	return count > 0, nil
}

// MarkEmailVerified flips the verified flag. It returns false when the user
// does not exist or was already verified.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, email string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&userModel{}).
		Where("email = ? AND email_verified = ?", domain.NormalizeEmail(email), false).
		Updates(map[string]any{
			"email_verified": true,
			"updated_at":     r.now().UTC(),
		})
	if tx.Error != nil {
		return false, translate(tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// AddToWishlist appends productID. It returns false if it was already there.
func (r *UserRepository) AddToWishlist(ctx context.Context, userID, productID string) (bool, error) {
	return r.editWishlist(ctx, userID, func(list []string) ([]string, bool) {
		if slices.Contains(list, productID) {
			return list, false
		}
		return append(list, productID), true
	})
}

// RemoveFromWishlist drops productID. It returns false if it was absent.
func (r *UserRepository) RemoveFromWishlist(ctx context.Context, userID, productID string) (bool, error) {
	return r.editWishlist(ctx, userID, func(list []string) ([]string, bool) {
		i := slices.Index(list, productID)
		if i < 0 {
			return list, false
		}
		return slices.Delete(list, i, i+1), true
	})
}

// editWishlist applies edit with a compare-and-swap on the stored JSON so
// concurrent edits of one user never lose an update.
func (r *UserRepository) editWishlist(ctx context.Context, userID string, edit func([]string) ([]string, bool)) (bool, error) {
	for attempt := 0; attempt < wishlistCASAttempts; attempt++ {
		var m userModel
		if err := r.db.WithContext(ctx).Select("id", "wishlist").Where("id = ?", userID).First(&m).Error; err != nil {
			return false, translate(err)
		}
		list, err := decodeWishlist(m.Wishlist)
		if err != nil {
			return false, err
		}
		next, changed := edit(list)
		if !changed {
			return false, nil
		}
		encoded, err := encodeWishlist(next)
		if err != nil {
			return false, err
		}

		tx := r.db.WithContext(ctx).Model(&userModel{}).
			Where("id = ? AND wishlist = ?", userID, m.Wishlist).
			Updates(map[string]any{
				"wishlist":   encoded,
				"updated_at": r.now().UTC(),
			})
		if tx.Error != nil {
			return false, translate(tx.Error)
		}
		if tx.RowsAffected == 1 {
			return true, nil
		}
	}
	return false, ErrConflict
}

func decodeWishlist(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode wishlist: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

func encodeWishlist(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode wishlist: %w", err)
	}
	return string(b), nil
}
