package soauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pilab-dev/shadow-oauth/credentials"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/internal/storetest"
	"github.com/pilab-dev/shadow-oauth/memstore"
	"github.com/pilab-dev/shadow-oauth/protocol"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/pilab-dev/shadow-oauth/signer"
)

const (
	clientName     = "client-app"
	clientPassword = "client-password"
	ownerName      = "alice"
	ownerPassword  = "alice-password"
	restKey        = "rest-key"
)

type fixture struct {
	server *Server
	store  *memstore.CredentialStore
	clock  *storetest.Clock
	client domain.User
	owner  domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := storetest.NewClock(storetest.Epoch)
	store := memstore.NewCredentialStore(clock)
	users := services.NewUserService(memstore.NewUserStore(), auth.NewBcryptPasswordHasher(bcrypt.MinCost))

	client, err := users.CreateUser(ctx, clientName, clientPassword)
	require.NoError(t, err)
	owner, err := users.CreateUser(ctx, ownerName, ownerPassword)
	require.NoError(t, err)

	return &fixture{
		server: NewServer(store, users, WithClock(clock)),
		store:  store,
		clock:  clock,
		client: client,
		owner:  owner,
	}
}

func clientRequest(params map[string]string) *protocol.Request {
	u, _ := url.Parse("https://auth.example.com/oauth2")
	all := map[string]string{
		protocol.ClientID:        credentials.EncodeClientID(clientName, restKey),
		protocol.ClientSecret:    credentials.EncodeClientSecret("nonce", clientPassword, restKey),
		protocol.SignatureMethod: signer.MethodPlaintext,
	}
	for k, v := range params {
		all[k] = v
	}
	return protocol.NewRequest(http.MethodPost, u, all)
}

func (f *fixture) temporary(t *testing.T) string {
	t.Helper()
	resp, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseTemporary,
		protocol.RedirectURI:  "https://client.example.com/cb",
	}))
	require.NoError(t, err)
	return resp.Body.(CodeResponse).Code
}

func (f *fixture) authorise(t *testing.T, code string) string {
	t.Helper()
	resp, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         code,
		protocol.Username:     ownerName,
		protocol.Password:     ownerPassword,
	}))
	require.NoError(t, err)
	return resp.Body.(CodeResponse).Code
}

func (f *fixture) token(t *testing.T, code string) TokenResponse {
	t.Helper()
	resp, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseToken,
		protocol.Code:         code,
	}))
	require.NoError(t, err)
	return resp.Body.(TokenResponse)
}

func resourceRequest(accessToken string) *protocol.Request {
	u, _ := url.Parse("https://api.example.com/api/me")
	return protocol.NewRequest(http.MethodGet, u, map[string]string{protocol.AccessToken: accessToken})
}

func TestThreeLeggedFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	temporary := f.temporary(t)
	require.NotEmpty(t, temporary)

	authorised := f.authorise(t, temporary)
	require.NotEmpty(t, authorised)
	assert.NotEqual(t, temporary, authorised)

	tok := f.token(t, authorised)
	assert.NotEmpty(t, tok.AccessToken)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.Equal(t, TokenType, tok.TokenType)
	assert.Equal(t, "PT4H", tok.ExpiresIn)

	resp, err := f.server.Listen(ctx, resourceRequest(tok.AccessToken))
	require.NoError(t, err)
	require.NotNil(t, resp.Grant)
	assert.Equal(t, f.owner.ID, resp.Grant.ResourceOwnerID)
	assert.Equal(t, clientName, resp.Grant.ClientID)
	assert.Equal(t, storetest.Epoch.Add(4*time.Hour), resp.Grant.ExpiresAt)
}

func TestCodeResponseState(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseTemporary,
		protocol.State:        "xyz",
	}))
	require.NoError(t, err)
	assert.True(t, resp.Body.(CodeResponse).State)

	raw, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"oauth_code":"`+resp.Body.(CodeResponse).Code+`","oauth_state":true}`, string(raw))
}

func TestAuthoriseTwiceIsInvalidTransition(t *testing.T) {
	f := newFixture(t)

	temporary := f.temporary(t)
	f.authorise(t, temporary)

	_, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         temporary,
	}))
	assert.ErrorIs(t, err, credentials.ErrInvalidTransition)
}

func TestAuthoriseRequiresMatchingCode(t *testing.T) {
	f := newFixture(t)
	f.temporary(t)

	_, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         "not-the-token",
	}))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestAuthoriseWithoutOwnerUsesClientAccount(t *testing.T) {
	f := newFixture(t)
	temporary := f.temporary(t)

	_, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         temporary,
	}))
	require.NoError(t, err)

	rec, err := f.store.FindBySecretKey(context.Background(), credentials.SecretKey(clientPassword, restKey))
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, rec.ResourceOwnerID)
	assert.Equal(t, domain.CredentialAuthorised, rec.Type)
}

func TestAuthoriseWrongOwnerPassword(t *testing.T) {
	f := newFixture(t)
	temporary := f.temporary(t)

	_, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         temporary,
		protocol.Username:     ownerName,
		protocol.Password:     "wrong-password",
	}))
	assert.ErrorIs(t, err, ErrResourceOwnerAuth)
}

func TestTokenBeforeAuthorise(t *testing.T) {
	f := newFixture(t)
	f.temporary(t)

	_, err := f.server.Listen(context.Background(), clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseToken,
	}))
	assert.ErrorIs(t, err, credentials.ErrInvalidTransition)
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, f.authorise(t, f.temporary(t)))

	f.clock.Advance(time.Hour)
	resp, err := f.server.Listen(ctx, clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseRefreshToken,
		protocol.RefreshToken: tok.RefreshToken,
	}))
	require.NoError(t, err)
	refreshed := resp.Body.(TokenResponse)
	assert.NotEqual(t, tok.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, tok.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, "PT4H", refreshed.ExpiresIn)

	_, err = f.server.Listen(ctx, resourceRequest(tok.AccessToken))
	assert.ErrorIs(t, err, credentials.ErrCredentialsNotFound)

	_, err = f.server.Listen(ctx, resourceRequest(refreshed.AccessToken))
	assert.NoError(t, err)
}

func TestTokenAfterConvertIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, f.authorise(t, f.temporary(t)))

	_, err := f.server.Listen(ctx, clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseToken,
	}))
	assert.ErrorIs(t, err, credentials.ErrInvalidTransition)

	_, err = f.server.Listen(ctx, resourceRequest(tok.AccessToken))
	assert.NoError(t, err)
}

func TestRefreshRequiresRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, f.authorise(t, f.temporary(t)))

	_, err := f.server.Listen(ctx, clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseRefreshToken,
	}))
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = f.server.Listen(ctx, resourceRequest(tok.AccessToken))
	assert.NoError(t, err)
}

func TestExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, f.authorise(t, f.temporary(t)))

	f.clock.Advance(5 * time.Hour)
	_, err := f.server.Listen(context.Background(), resourceRequest(tok.AccessToken))
	assert.ErrorIs(t, err, credentials.ErrCredentialsNotFound)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, f.authorise(t, f.temporary(t)))

	resp, err := f.server.Revoke(ctx, clientRequest(map[string]string{protocol.AccessToken: tok.AccessToken}))
	require.NoError(t, err)
	assert.Equal(t, StateResponse{State: false}, resp.Body)

	_, err = f.server.Listen(ctx, resourceRequest(tok.AccessToken))
	assert.ErrorIs(t, err, credentials.ErrCredentialsNotFound)
}

func TestRevokeRequiresToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.server.Revoke(context.Background(), clientRequest(nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestDeny(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	temporary := f.temporary(t)

	_, err := f.server.Deny(ctx, clientRequest(map[string]string{protocol.Code: temporary}))
	require.NoError(t, err)
	assert.Zero(t, f.store.Len())

	_, err = f.server.Listen(ctx, clientRequest(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         temporary,
	}))
	assert.ErrorIs(t, err, credentials.ErrInvalidTransition)
}

func TestResourceRequiresTokenCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	temporary := f.temporary(t)

	_, err := f.server.Listen(ctx, resourceRequest(temporary))
	assert.ErrorIs(t, err, credentials.ErrCredentialsNotFound)
}

func TestClientAuthentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  map[string]string
		wantErr error
	}{
		{
			name:    "missing client params",
			params:  map[string]string{protocol.ClientSecret: "", protocol.ResponseType: protocol.ResponseTemporary},
			wantErr: ErrMissingClientParams,
		},
		{
			name: "wrong password",
			params: map[string]string{
				protocol.ResponseType: protocol.ResponseTemporary,
				protocol.ClientSecret: credentials.EncodeClientSecret("nonce", "wrong-password", restKey),
			},
			wantErr: ErrClientAuthFailed,
		},
		{
			name: "unknown client",
			params: map[string]string{
				protocol.ResponseType: protocol.ResponseTemporary,
				protocol.ClientID:     credentials.EncodeClientID("nobody", restKey),
			},
			wantErr: ErrUnknownClient,
		},
		{
			name:    "unknown response type",
			params:  map[string]string{protocol.ResponseType: "code"},
			wantErr: ErrUnknownResponseType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.server.Listen(ctx, clientRequest(tt.params))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListenWithoutParameters(t *testing.T) {
	f := newFixture(t)
	u, _ := url.Parse("https://auth.example.com/oauth2")

	_, err := f.server.Listen(context.Background(), protocol.NewRequest(http.MethodGet, u, nil))
	assert.ErrorIs(t, err, protocol.ErrNoParameters)
}

func TestSignedTemporaryRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secretKey := credentials.SecretKey(clientPassword, restKey)
	hmacSigner, err := signer.New(signer.MethodHMACSHA1)
	require.NoError(t, err)

	req := clientRequest(map[string]string{
		protocol.ResponseType:    protocol.ResponseTemporary,
		protocol.SignatureMethod: signer.MethodHMACSHA1,
	})
	req.Signature, err = hmacSigner.Sign(req.BaseString(), secretKey, "")
	require.NoError(t, err)

	_, err = f.server.Listen(ctx, req)
	require.NoError(t, err)

	req.Signature = "forged"
	_, err = f.server.Listen(ctx, req)
	assert.ErrorIs(t, err, credentials.ErrInvalidSignature)
}

func TestToOAuth2Error(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   string
		wantStatus int
	}{
		{ErrUnknownResponseType, serrors.InvalidRequest, http.StatusBadRequest},
		{ErrClientAuthFailed, serrors.UnauthorizedClient, http.StatusBadRequest},
		{ErrInvalidCode, serrors.InvalidGrant, http.StatusBadRequest},
		{credentials.ErrInvalidTransition, serrors.InvalidRequest, http.StatusBadRequest},
		{credentials.ErrCredentialsNotFound, serrors.InvalidRequest, http.StatusBadRequest},
		{domain.ErrConcurrentUpdate, serrors.InvalidRequest, http.StatusConflict},
		{errors.New("boom"), serrors.ServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := ToOAuth2Error(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus())
		})
	}

	wrapped := ToOAuth2Error(serrors.NewAccessDenied("no"))
	assert.Equal(t, http.StatusForbidden, wrapped.HTTPStatus())
}

func TestCleanerRemovesStaleCredentials(t *testing.T) {
	f := newFixture(t)
	f.temporary(t)
	require.Equal(t, 1, f.store.Len())

	cleaner := NewCleaner(f.store, time.Minute, nil)

	n, err := cleaner.CleanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(6 * time.Hour)
	n, err = cleaner.CleanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, f.store.Len())
}
