package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/domain"
)

// TokenStore implements cache.TokenStore on Redis. Records are stored as
// JSON strings and expire through the Redis key TTL.
type TokenStore struct {
	client *redis.Client
	prefix string
}

var _ cache.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a store whose keys all start with prefix.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	return &TokenStore{client: client, prefix: prefix}
}

func (r *TokenStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

func (r *TokenStore) Set(ctx context.Context, key string, rec domain.CredentialRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set credentials in Redis: %w", err)
	}

	return nil
}

func (r *TokenStore) Get(ctx context.Context, key string) (domain.CredentialRecord, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CredentialRecord{}, cache.ErrCacheMiss
	}
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("failed to get credentials from Redis: %w", err)
	}

	var rec domain.CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	return rec, nil
}

func (r *TokenStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.redisKey(key)).Err()
}

// Clear deletes every key under the prefix.
func (r *TokenStore) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := r.redisKey("*")

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Count scans the prefix; it is meant for diagnostics, not hot paths.
func (r *TokenStore) Count(ctx context.Context) int {
	var (
		cursor uint64
		count  int
	)
	pattern := r.redisKey("*")

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count
		}
		count += len(keys)

		cursor = next
		if cursor == 0 {
			return count
		}
	}
}
