package domain

import (
	"slices"
	"strings"
	"time"
)

// User is an account known to the auth service. ID is a UUID string.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	Wishlist      []string  `json:"wishlist"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) HasInWishlist(productID string) bool {
	return slices.Contains(u.Wishlist, productID)
}
