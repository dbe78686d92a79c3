package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// MemoryTokenStore implements TokenStore using ttlcache.
type MemoryTokenStore struct {
	cache *ttlcache.Cache[string, domain.CredentialRecord]
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates an in-memory store whose entries live at most
// maxTTL. Call Close to stop the expiry goroutine.
func NewMemoryTokenStore(maxTTL time.Duration) *MemoryTokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, domain.CredentialRecord](maxTTL),
		ttlcache.WithDisableTouchOnHit[string, domain.CredentialRecord](),
	)

	go cache.Start()

	return &MemoryTokenStore{cache: cache}
}

func (s *MemoryTokenStore) Set(_ context.Context, key string, rec domain.CredentialRecord, ttl time.Duration) error {
	s.cache.Set(key, rec, ttl)
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (domain.CredentialRecord, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return domain.CredentialRecord{}, ErrCacheMiss
	}
	return item.Value(), nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

func (s *MemoryTokenStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the expiry goroutine.
func (s *MemoryTokenStore) Close() {
	s.cache.Stop()
}
