package cache

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// ErrCacheMiss is returned by TokenStore.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// TokenStore keeps credential records under opaque keys for a bounded time.
type TokenStore interface {
	Set(ctx context.Context, key string, rec domain.CredentialRecord, ttl time.Duration) error
	Get(ctx context.Context, key string) (domain.CredentialRecord, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}
