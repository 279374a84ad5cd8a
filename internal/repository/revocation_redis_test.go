package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, retention time.Duration) (*RedisRevocationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocationStore(client, retention), mr
}

func TestRedisRevocationStore_AddContains(t *testing.T) {
	store, mr := newRedisStore(t, 24*time.Hour)
	ctx := context.Background()

	added, err := store.Add(ctx, "ciphertext")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Add(ctx, "ciphertext")
	require.NoError(t, err)
	assert.False(t, added)

	found, err := store.Contains(ctx, "ciphertext")
	require.NoError(t, err)
	assert.True(t, found)

	key := revokedKeyPrefix + tokenDigest("ciphertext")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))
}

func TestRedisRevocationStore_ExpiresAfterRetention(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.Add(ctx, "ciphertext")
	require.NoError(t, err)

	mr.FastForward(59 * time.Minute)
	found, err := store.Contains(ctx, "ciphertext")
	require.NoError(t, err)
	assert.True(t, found)

	mr.FastForward(time.Minute)
	found, err = store.Contains(ctx, "ciphertext")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisRevocationStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	mr.Close()

	_, err := store.Add(context.Background(), "ciphertext")
	assert.Error(t, err)
	_, err = store.Contains(context.Background(), "ciphertext")
	assert.Error(t, err)
}
