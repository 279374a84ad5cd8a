package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevokedTokenRepository_AddContains(t *testing.T) {
	repo := NewRevokedTokenRepository(openTestDB(t), 24*time.Hour)
	ctx := context.Background()

	found, err := repo.Contains(ctx, "ciphertext-a")
	require.NoError(t, err)
	assert.False(t, found)

	added, err := repo.Add(ctx, "ciphertext-a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Add(ctx, "ciphertext-a")
	require.NoError(t, err)
	assert.False(t, added, "second add is a no-op")

	found, err = repo.Contains(ctx, "ciphertext-a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Contains(ctx, "ciphertext-b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRevokedTokenRepository_RetentionAndPurge(t *testing.T) {
	repo := NewRevokedTokenRepository(openTestDB(t), 24*time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_, err := repo.Add(ctx, "old")
	require.NoError(t, err)

	now = now.Add(23 * time.Hour)
	_, err = repo.Add(ctx, "fresh")
	require.NoError(t, err)

	found, err := repo.Contains(ctx, "old")
	require.NoError(t, err)
	assert.True(t, found)

	now = now.Add(time.Hour)
	found, err = repo.Contains(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found, "entry expires after retention")

	n, err := repo.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err = repo.Contains(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRevokedTokenRepository_ConcurrentAddHasOneWinner(t *testing.T) {
	repo := NewRevokedTokenRepository(openTestDB(t), time.Hour)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if added, err := repo.Add(ctx, "same-token"); err == nil && added {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTokenDigest_IsFixedSize(t *testing.T) {
	short := tokenDigest("a")
	long := tokenDigest(string(make([]byte, 4096)))
	assert.Len(t, short, 64)
	assert.Len(t, long, 64)
	assert.NotEqual(t, short, long)
}
