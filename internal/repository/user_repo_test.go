package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micromart/internal/domain"
)

func newUser(email string) *domain.User {
	return &domain.User{
		Email:        email,
		PasswordHash: "$2a$10$hash",
		FirstName:    "Alice",
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))
	ctx := context.Background()

	u := newUser("  Alice@Example.COM ")
	require.NoError(t, repo.Create(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, []string{}, u.Wishlist)
	assert.False(t, u.EmailVerified)

	got, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	exists, err := repo.ExistsByEmail(ctx, "alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.GetByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("alice@example.com")))
	err := repo.Create(ctx, newUser("ALICE@example.com"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepository_MarkEmailVerifiedOnce(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newUser("alice@example.com")))

	changed, err := repo.MarkEmailVerified(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkEmailVerified(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkEmailVerified(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.False(t, changed)

	u, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestUserRepository_Wishlist(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))
	ctx := context.Background()
	u := newUser("alice@example.com")
	require.NoError(t, repo.Create(ctx, u))

	added, err := repo.AddToWishlist(ctx, u.ID, "p-2")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddToWishlist(ctx, u.ID, "p-1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddToWishlist(ctx, u.ID, "p-2")
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-2", "p-1"}, got.Wishlist)

	removed, err := repo.RemoveFromWishlist(ctx, u.ID, "p-2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveFromWishlist(ctx, u.ID, "p-2")
	require.NoError(t, err)
	assert.False(t, removed)

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, got.Wishlist)

	_, err = repo.AddToWishlist(ctx, "missing", "p-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_WishlistConcurrentAddsAreNotLost(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))
	ctx := context.Background()
	u := newUser("alice@example.com")
	require.NoError(t, repo.Create(ctx, u))

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = repo.AddToWishlist(ctx, u.ID, id)
		}(id)
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, got.Wishlist)
}
