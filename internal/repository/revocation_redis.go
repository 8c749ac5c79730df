package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/reeltap/internal/domain"
)

const revokedKeyPrefix = "revoked:"

type redisRevocationStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisRevocationStore keeps one key per revoked jti. Keys expire together with the
// token they describe, so Redis does the purging.
func NewRedisRevocationStore(client redis.UniversalClient) RevocationStore {
	return &redisRevocationStore{client: client, now: time.Now}
}

func revokedKey(jti string) string {
	return revokedKeyPrefix + jti
}

func (s *redisRevocationStore) Revoke(ctx context.Context, entry domain.RevocationEntry) error {
	now := s.now()
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		// already dead; expiry alone rejects it
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now.UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, revokedKey(entry.JTI), payload, ttl).Err()
}

func (s *redisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisRevocationStore) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *redisRevocationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
