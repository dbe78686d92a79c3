package credentials

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/storetest"
	"github.com/pilab-dev/shadow-oauth/memstore"
	"github.com/pilab-dev/shadow-oauth/protocol"
	"github.com/pilab-dev/shadow-oauth/signer"
)

const (
	testUser    = "client-app"
	testPass    = "s3cret"
	testRestKey = "restkey"
)

func newRequest(params map[string]string) *protocol.Request {
	u, _ := url.Parse("http://server.example.com/oauth2")
	base := map[string]string{
		protocol.ClientID:        EncodeClientID(testUser, testRestKey),
		protocol.ClientSecret:    EncodeClientSecret("nonce", testPass, testRestKey),
		protocol.SignatureMethod: signer.MethodPlaintext,
	}
	for k, v := range params {
		base[k] = v
	}
	req := protocol.NewRequest("POST", u, base)
	req.ClientIP = "192.0.2.1"
	return req
}

type recorder struct {
	events []TransitionEvent
}

func (r *recorder) Transitioned(_ context.Context, ev TransitionEvent) {
	r.events = append(r.events, ev)
}

func newFacade(t *testing.T, store domain.CredentialStore, clock domain.Clock, params map[string]string) *Credentials {
	t.Helper()
	c, err := New(newRequest(params), store, WithClock(clock))
	require.NoError(t, err)
	return c
}

func TestFacadeLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)
	rec := &recorder{}

	// temporary
	c, err := New(newRequest(map[string]string{protocol.ResponseType: protocol.ResponseTemporary}), store,
		WithClock(clock), WithObserver(rec))
	require.NoError(t, err)
	require.NoError(t, c.Initialise(ctx, testUser, "https://cb", time.Hour))

	assert.Equal(t, StateTemporary, c.State())
	assert.Equal(t, SecretKey(testPass, testRestKey), c.ClientSecret())
	assert.Equal(t, "192.0.2.1", c.Record().ClientIP)
	assert.Equal(t, storetest.Epoch.Add(time.Hour), c.ExpirationDate())
	assert.Equal(t, storetest.Epoch.Add(time.Hour), c.TemporaryExpirationDate())
	temporaryToken := c.TemporaryToken()
	require.Len(t, rec.events, 1)
	assert.Equal(t, StateNew, rec.events[0].From)
	assert.Equal(t, StateTemporary, rec.events[0].To)

	// authorise
	c = newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseAuthorise, protocol.Code: temporaryToken})
	found, err := c.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateTemporary, c.State())
	require.NoError(t, c.Authorise(ctx, 77, 0))
	assert.Equal(t, StateAuthorised, c.State())
	assert.True(t, c.ExpirationDate().IsZero())
	assert.NotEqual(t, temporaryToken, c.TemporaryToken())

	// convert
	c = newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseToken})
	_, err = c.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAuthorised, c.State())
	require.NoError(t, c.Convert(ctx, 4*time.Hour))
	assert.Equal(t, domain.CredentialToken, c.Type())
	assert.Empty(t, c.CallbackURL())
	assert.True(t, c.TemporaryExpirationDate().IsZero())
	access, refresh := c.AccessToken(), c.RefreshToken()

	// resource access
	c = newFacade(t, store, clock, map[string]string{protocol.AccessToken: access})
	_, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateToken, c.State())
	assert.Equal(t, int64(77), c.ResourceOwnerID())

	// refresh
	c = newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseRefreshToken, protocol.RefreshToken: refresh})
	_, err = c.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(ctx, time.Hour))
	assert.NotEqual(t, access, c.AccessToken())

	c = newFacade(t, store, clock, map[string]string{protocol.AccessToken: access})
	_, err = c.Load(ctx)
	assert.ErrorIs(t, err, ErrCredentialsNotFound, "rotated access token no longer resolves")
}

func TestFacadeLoadMissBindsNew(t *testing.T) {
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	c := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseAuthorise})
	found, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, StateNew, c.State())

	err = c.Authorise(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, store.Len())
}

func TestFacadeLoadTokenMiss(t *testing.T) {
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	c := newFacade(t, store, clock, map[string]string{protocol.AccessToken: "nope"})
	_, err := c.Load(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	c = newFacade(t, store, clock, nil)
	_, err = c.Load(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestFacadeLoadInvalidType(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	_, err := store.Insert(ctx, domain.CredentialRecord{
		ClientSecret:   SecretKey(testPass, testRestKey),
		TemporaryToken: "t",
		Type:           domain.CredentialType(9),
	})
	require.NoError(t, err)

	c := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseToken})
	_, err = c.Load(ctx)
	assert.ErrorIs(t, err, ErrInvalidCredentialType)
}

func TestFacadeDenyAndRevoke(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	c := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	require.NoError(t, c.Initialise(ctx, testUser, "", 0))
	require.NoError(t, c.Deny(ctx))
	assert.Equal(t, StateDenied, c.State())
	assert.Zero(t, store.Len())
	assert.ErrorIs(t, c.Deny(ctx), ErrInvalidTransition)

	c = newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	require.NoError(t, c.Initialise(ctx, testUser, "", 0))
	require.NoError(t, c.Authorise(ctx, 3, 0))
	assert.ErrorIs(t, c.Revoke(ctx), ErrInvalidTransition)
	require.NoError(t, c.Convert(ctx, 0))
	access := c.AccessToken()
	require.NoError(t, c.Revoke(ctx))
	assert.Equal(t, StateRevoked, c.State())

	c = newFacade(t, store, clock, map[string]string{protocol.AccessToken: access})
	_, err := c.Load(ctx)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestFacadeIllegalTransitionLeavesStore(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	c := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	require.NoError(t, c.Initialise(ctx, testUser, "https://cb", 0))
	before := c.Record()

	assert.ErrorIs(t, c.Convert(ctx, 0), ErrInvalidTransition)
	assert.ErrorIs(t, c.Revoke(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, c.Initialise(ctx, testUser, "", 0), ErrInvalidTransition)
	assert.Equal(t, before, c.Record())

	stored, err := store.FindBySecretKey(ctx, before.ClientSecret)
	require.NoError(t, err)
	assert.Equal(t, before, stored)
}

func TestFacadeConcurrentAuthorise(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	c := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	require.NoError(t, c.Initialise(ctx, testUser, "", 0))

	params := map[string]string{protocol.ResponseType: protocol.ResponseAuthorise}
	first := newFacade(t, store, clock, params)
	second := newFacade(t, store, clock, params)
	_, err := first.Load(ctx)
	require.NoError(t, err)
	_, err = second.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, first.Authorise(ctx, 1, 0))
	err = second.Authorise(ctx, 2, 0)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, StateTemporary, second.State())
}

func TestFacadeCleansBeforeTokenLookup(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)

	c := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	require.NoError(t, c.Initialise(ctx, testUser, "", time.Minute))
	stale := newFacade(t, store, clock, map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	require.NoError(t, stale.Initialise(ctx, testUser, "", time.Minute))
	require.Equal(t, 2, store.Len())

	clock.Advance(2 * time.Hour)

	c = newFacade(t, store, clock, map[string]string{protocol.AccessToken: "x"})
	_, err := c.Load(ctx)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Zero(t, store.Len())
}

type failingStore struct {
	domain.CredentialStore
}

func (failingStore) Insert(context.Context, domain.CredentialRecord) (domain.CredentialRecord, error) {
	return domain.CredentialRecord{}, errors.New("connection refused")
}

func TestFacadeStoreErrorKeepsState(t *testing.T) {
	clock := storetest.NewClock(storetest.Epoch)
	store := failingStore{memstore.NewCredentialStore(clock)}
	rec := &recorder{}

	c, err := New(newRequest(nil), store, WithClock(clock), WithObserver(rec))
	require.NoError(t, err)

	err = c.Initialise(context.Background(), testUser, "", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateNew, c.State())
	require.Len(t, rec.events, 1)
	assert.Equal(t, StateNew, rec.events[0].To)
	assert.Error(t, rec.events[0].Err)
}

func TestNewRejectsSignatureMethod(t *testing.T) {
	store := memstore.NewCredentialStore(nil)

	_, err := New(newRequest(map[string]string{protocol.SignatureMethod: "RSA-SHA1"}), store)
	assert.ErrorIs(t, err, signer.ErrUnsupportedSignatureMethod)

	_, err = New(newRequest(map[string]string{protocol.SignatureMethod: "bogus"}), store)
	assert.ErrorIs(t, err, signer.ErrInvalidSignatureMethod)
}
