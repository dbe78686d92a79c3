package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/storetest"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "oauth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCredentialRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock domain.Clock) domain.CredentialStore {
		return NewCredentialRepository(openTestDB(t), clock)
	})
}

func TestTokenIndexFollowsUpdates(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	repo := NewCredentialRepository(openTestDB(t), clock)

	rec, err := repo.Insert(ctx, domain.CredentialRecord{
		ClientSecret:   "secret",
		AccessToken:    "access-1",
		Type:           domain.CredentialToken,
		ExpirationDate: storetest.Epoch.Add(time.Hour),
	})
	require.NoError(t, err)

	rec.AccessToken = "access-2"
	rec, err = repo.Update(ctx, rec)
	require.NoError(t, err)

	_, err = repo.FindByAccessToken(ctx, "access-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err := repo.FindByAccessToken(ctx, "access-2")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	// the released token can be taken by another record
	_, err = repo.Insert(ctx, domain.CredentialRecord{ClientSecret: "other", AccessToken: "access-1"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, rec))
	_, err = repo.FindByAccessToken(ctx, "access-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCleanSweepsEachDateOnce(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	repo := NewCredentialRepository(openTestDB(t), clock)

	old := storetest.Epoch.Add(-2 * time.Hour)
	for _, rec := range []domain.CredentialRecord{
		{ClientSecret: "both", ExpirationDate: old, TemporaryExpirationDate: old},
		{ClientSecret: "temporary-only", ExpirationDate: storetest.Epoch.Add(time.Hour), TemporaryExpirationDate: old},
		{ClientSecret: "fresh", ExpirationDate: storetest.Epoch.Add(time.Hour)},
	} {
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
	}

	removed, err := repo.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = repo.FindBySecretKey(ctx, "fresh")
	assert.NoError(t, err)
	_, err = repo.FindBySecretKey(ctx, "both")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindBySecretKey(ctx, "temporary-only")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))
	ctx := context.Background()

	alice, err := repo.CreateUser(ctx, domain.User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.ID)

	_, err = repo.CreateUser(ctx, domain.User{Username: "alice"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	found, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", found.PasswordHash)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, repo.DeleteUser(ctx, alice.ID))
	_, err = repo.GetUserByUsername(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteUser(ctx, alice.ID), domain.ErrNotFound)
}
