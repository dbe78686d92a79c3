// Package storetest holds the behaviour every domain.CredentialStore must
// share. Backend packages run it against their own implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// Clock is a settable domain.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Epoch is the starting time of every suite run. Whole seconds keep the
// values exact across backends with coarser timestamp precision.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Factory builds an empty store reading time from clock.
type Factory func(t *testing.T, clock domain.Clock) domain.CredentialStore

// Run executes the shared suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAssignsID", func(t *testing.T) { testInsert(t, newStore) })
	t.Run("UpdateVersioning", func(t *testing.T) { testUpdate(t, newStore) })
	t.Run("FindBySecretKeyLatest", func(t *testing.T) { testFindBySecretKey(t, newStore) })
	t.Run("FindByTokenFiltersExpired", func(t *testing.T) { testFindByToken(t, newStore) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("CleanBoundaries", func(t *testing.T) { testClean(t, newStore) })
	t.Run("UniqueTokens", func(t *testing.T) { testUnique(t, newStore) })
}

func temporary(secret, token string, exp time.Time) domain.CredentialRecord {
	return domain.CredentialRecord{
		ClientID:                "client",
		ClientSecret:            secret,
		ClientIP:                "127.0.0.1",
		CallbackURL:             "https://client.example.com/cb",
		TemporaryToken:          token,
		Type:                    domain.CredentialTemporary,
		ExpirationDate:          exp,
		TemporaryExpirationDate: exp,
	}
}

func testInsert(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, NewClock(Epoch))

	rec, err := store.Insert(ctx, temporary("secret", "tmp-1", Epoch.Add(time.Hour)))
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	_, err = store.Insert(ctx, rec)
	assert.ErrorIs(t, err, domain.ErrAlreadyPersisted)

	found, err := store.FindBySecretKey(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, "tmp-1", found.TemporaryToken)
	assert.Equal(t, "https://client.example.com/cb", found.CallbackURL)
	assert.True(t, found.ExpirationDate.Equal(Epoch.Add(time.Hour)))
}

func testUpdate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, NewClock(Epoch))

	_, err := store.Update(ctx, temporary("secret", "tmp-1", Epoch))
	assert.ErrorIs(t, err, domain.ErrNotPersisted)

	rec, err := store.Insert(ctx, temporary("secret", "tmp-1", Epoch.Add(time.Hour)))
	require.NoError(t, err)

	stale := rec

	rec.Type = domain.CredentialAuthorised
	rec.ResourceOwnerID = 42
	rec.ExpirationDate = time.Time{}
	updated, err := store.Update(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.Version+1, updated.Version)

	stale.ResourceOwnerID = 7
	_, err = store.Update(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	found, err := store.FindBySecretKey(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), found.ResourceOwnerID)
	assert.Equal(t, domain.CredentialAuthorised, found.Type)
	assert.True(t, found.ExpirationDate.IsZero())
}

func testFindBySecretKey(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, NewClock(Epoch))

	_, err := store.FindBySecretKey(ctx, "secret")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	first, err := store.Insert(ctx, temporary("secret", "tmp-1", Epoch.Add(time.Hour)))
	require.NoError(t, err)
	second, err := store.Insert(ctx, temporary("secret", "tmp-2", Epoch.Add(time.Hour)))
	require.NoError(t, err)
	_, err = store.Insert(ctx, temporary("other", "tmp-3", Epoch.Add(time.Hour)))
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)

	found, err := store.FindBySecretKey(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func testFindByToken(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(Epoch)
	store := newStore(t, clock)

	rec := temporary("secret", "tmp-1", time.Time{})
	rec.Type = domain.CredentialToken
	rec.AccessToken = "access-1"
	rec.RefreshToken = "refresh-1"
	rec.TemporaryExpirationDate = time.Time{}
	rec.ExpirationDate = Epoch.Add(time.Minute)

	_, err := store.Insert(ctx, rec)
	require.NoError(t, err)

	found, err := store.FindByAccessToken(ctx, "access-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", found.RefreshToken)

	found, err = store.FindByRefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", found.AccessToken)

	_, err = store.FindByAccessToken(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	clock.Advance(time.Minute)

	_, err = store.FindByAccessToken(ctx, "access-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.FindByRefreshToken(ctx, "refresh-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, NewClock(Epoch))

	rec, err := store.Insert(ctx, temporary("secret", "tmp-1", Epoch.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, rec))

	_, err = store.FindBySecretKey(ctx, "secret")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testClean(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, NewClock(Epoch))

	keep := []domain.CredentialRecord{
		// exactly one hour past expiry
		{ClientSecret: "keep-exp", TemporaryToken: "k1", ExpirationDate: Epoch.Add(-time.Hour)},
		{ClientSecret: "keep-tmp", TemporaryToken: "k2", TemporaryExpirationDate: Epoch.Add(-time.Hour)},
		// never expires
		{ClientSecret: "keep-zero", TemporaryToken: "k3", Type: domain.CredentialAuthorised},
		{ClientSecret: "keep-future", TemporaryToken: "k4", ExpirationDate: Epoch.Add(time.Hour)},
	}
	drop := []domain.CredentialRecord{
		{ClientSecret: "drop-exp", TemporaryToken: "d1", ExpirationDate: Epoch.Add(-time.Hour - time.Second)},
		{ClientSecret: "drop-tmp", TemporaryToken: "d2", TemporaryExpirationDate: Epoch.Add(-time.Hour - time.Second)},
		{
			ClientSecret:            "drop-both",
			TemporaryToken:          "d3",
			ExpirationDate:          Epoch.Add(-3 * time.Hour),
			TemporaryExpirationDate: Epoch.Add(-3 * time.Hour),
		},
		// a live general expiry does not protect a stale temporary one
		{
			ClientSecret:            "drop-mixed",
			TemporaryToken:          "d4",
			ExpirationDate:          Epoch.Add(time.Hour),
			TemporaryExpirationDate: Epoch.Add(-2 * time.Hour),
		},
	}

	for _, rec := range append(append([]domain.CredentialRecord{}, keep...), drop...) {
		_, err := store.Insert(ctx, rec)
		require.NoError(t, err)
	}

	removed, err := store.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(drop)), removed)

	for _, rec := range keep {
		_, err := store.FindBySecretKey(ctx, rec.ClientSecret)
		assert.NoError(t, err, rec.ClientSecret)
	}
	for _, rec := range drop {
		_, err := store.FindBySecretKey(ctx, rec.ClientSecret)
		assert.ErrorIs(t, err, domain.ErrNotFound, rec.ClientSecret)
	}
}

func testUnique(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, NewClock(Epoch))

	_, err := store.Insert(ctx, temporary("a", "same", Epoch.Add(time.Hour)))
	require.NoError(t, err)

	_, err = store.Insert(ctx, temporary("b", "same", Epoch.Add(time.Hour)))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	// empty tokens never collide
	_, err = store.Insert(ctx, temporary("c", "", Epoch.Add(time.Hour)))
	require.NoError(t, err)
	_, err = store.Insert(ctx, temporary("d", "", Epoch.Add(time.Hour)))
	require.NoError(t, err)
}
