package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked:"

// RedisRevocationStore keeps one key per revoked token with a TTL equal to
// the retention window. SET NX makes the add atomic across replicas.
type RedisRevocationStore struct {
	client    redis.Cmdable
	retention time.Duration
}

func NewRedisRevocationStore(client redis.Cmdable, retention time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, retention: retention}
}

func (s *RedisRevocationStore) Add(ctx context.Context, token string) (bool, error) {
	added, err := s.client.SetNX(ctx, revokedKeyPrefix+tokenDigest(token), 1, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return added, nil
}

func (s *RedisRevocationStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+tokenDigest(token)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	return n == 1, nil
}
