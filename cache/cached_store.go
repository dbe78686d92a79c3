package cache

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/log"
)

// CachedStore serves FindByAccessToken from a TokenStore and delegates
// everything else to the wrapped store. Entries never outlive the record's
// expiration date, so Clean cannot remove a record that is still cached.
//
// Update and Delete leave a tombstone holding the lowest record version that
// may still be served. A lookup racing with them re-checks the tombstone
// after writing, so a revoked token is never resurrected by a late put.
type CachedStore struct {
	domain.CredentialStore

	cache  TokenStore
	ttl    time.Duration
	clock  domain.Clock
	logger log.Logger
}

var _ domain.CredentialStore = (*CachedStore)(nil)

// NewCachedStore wraps store. ttl caps how long a record is cached.
func NewCachedStore(store domain.CredentialStore, cache TokenStore, ttl time.Duration, clock domain.Clock, logger log.Logger) *CachedStore {
	if clock == nil {
		clock = domain.SystemClock
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &CachedStore{CredentialStore: store, cache: cache, ttl: ttl, clock: clock, logger: logger}
}

func tokenKey(token string) string {
	return "access:" + HashToken(token)
}

func idKey(id int64) string {
	return "credentials:" + strconv.FormatInt(id, 10)
}

func tombstoneKey(id int64) string {
	return "stale:" + strconv.FormatInt(id, 10)
}

// tombstoneTTL bounds how long a lookup may be in flight across an Update
// or Delete of the same record.
const tombstoneTTL = time.Minute

// deletedVersion marks every version of a record as stale.
const deletedVersion = math.MaxInt64

func (s *CachedStore) FindByAccessToken(ctx context.Context, token string) (domain.CredentialRecord, error) {
	now := s.clock.Now()

	rec, err := s.cache.Get(ctx, tokenKey(token))
	switch {
	case err == nil && rec.ExpirationDate.After(now) && !s.stale(ctx, rec):
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return rec, nil
	case err == nil:
		s.drop(ctx, token, rec.ID)
	case !errors.Is(err, ErrCacheMiss):
		s.logger.Warn(ctx, "Token cache lookup failed", log.Fields{"error": err.Error()})
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	rec, err = s.CredentialStore.FindByAccessToken(ctx, token)
	if err != nil {
		return rec, err
	}

	ttl := rec.ExpirationDate.Sub(now)
	if s.ttl > 0 && s.ttl < ttl {
		ttl = s.ttl
	}
	if ttl > 0 {
		s.put(ctx, token, rec, ttl)
	}

	return rec, nil
}

func (s *CachedStore) put(ctx context.Context, token string, rec domain.CredentialRecord, ttl time.Duration) {
	if s.stale(ctx, rec) {
		return
	}
	if err := s.cache.Set(ctx, tokenKey(token), rec, ttl); err != nil {
		s.logger.Warn(ctx, "Token cache write failed", log.Fields{"error": err.Error()})
		return
	}
	if err := s.cache.Set(ctx, idKey(rec.ID), rec, ttl); err != nil {
		s.logger.Warn(ctx, "Token cache write failed", log.Fields{"error": err.Error()})
	}

	// An Update or Delete may have landed between the read and the write.
	if s.stale(ctx, rec) {
		s.drop(ctx, token, rec.ID)
	}
}

// stale reports whether a tombstone supersedes rec.
func (s *CachedStore) stale(ctx context.Context, rec domain.CredentialRecord) bool {
	tomb, err := s.cache.Get(ctx, tombstoneKey(rec.ID))
	if err != nil {
		return false
	}
	return rec.Version < tomb.Version
}

func (s *CachedStore) drop(ctx context.Context, token string, id int64) {
	if err := s.cache.Delete(ctx, tokenKey(token)); err != nil {
		s.logger.Warn(ctx, "Token cache invalidation failed", log.Fields{"error": err.Error()})
	}
	_ = s.cache.Delete(ctx, idKey(id))
}

func (s *CachedStore) Update(ctx context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	updated, err := s.CredentialStore.Update(ctx, rec)
	if err != nil {
		return updated, err
	}
	s.invalidate(ctx, rec.ID, updated.Version)
	return updated, nil
}

func (s *CachedStore) Delete(ctx context.Context, rec domain.CredentialRecord) error {
	if err := s.CredentialStore.Delete(ctx, rec); err != nil {
		return err
	}
	s.invalidate(ctx, rec.ID, deletedVersion)
	return nil
}

// invalidate records that versions of id below minVersion are stale, then
// drops the cached access token of id, if any. The tombstone goes first so
// a concurrent put either sees it or is removed here.
func (s *CachedStore) invalidate(ctx context.Context, id int64, minVersion int64) {
	tomb := domain.CredentialRecord{ID: id, Version: minVersion}
	if err := s.cache.Set(ctx, tombstoneKey(id), tomb, tombstoneTTL); err != nil {
		s.logger.Warn(ctx, "Token cache tombstone write failed", log.Fields{"error": err.Error()})
	}

	cached, err := s.cache.Get(ctx, idKey(id))
	if err != nil {
		return
	}
	s.drop(ctx, cached.AccessToken, id)
}
