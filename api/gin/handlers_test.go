package oauthgin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	soauth "github.com/pilab-dev/shadow-oauth"
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

const restKey = "rest-key"

func setupRouter(t *testing.T) (*gin.Engine, domain.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	clock := storetest.NewClock(storetest.Epoch)
	users := services.NewUserService(memstore.NewUserStore(), auth.NewBcryptPasswordHasher(bcrypt.MinCost))
	_, err := users.CreateUser(ctx, "client-app", "client-password")
	require.NoError(t, err)
	owner, err := users.CreateUser(ctx, "alice", "alice-password")
	require.NoError(t, err)

	server := soauth.NewServer(memstore.NewCredentialStore(clock), users, soauth.WithClock(clock))

	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	NewOAuth2API(server, nil).RegisterRoutes(router)

	return router, owner
}

func clientForm(params map[string]string) url.Values {
	form := url.Values{}
	form.Set(protocol.ParamPrefix+protocol.ClientID, credentials.EncodeClientID("client-app", restKey))
	form.Set(protocol.ParamPrefix+protocol.ClientSecret, credentials.EncodeClientSecret("nonce", "client-password", restKey))
	form.Set(protocol.ParamPrefix+protocol.SignatureMethod, signer.MethodPlaintext)
	for k, v := range params {
		form.Set(protocol.ParamPrefix+k, v)
	}
	return form
}

func post(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func issueToken(t *testing.T, router *gin.Engine) soauth.TokenResponse {
	t.Helper()

	w := post(router, "/oauth2", clientForm(map[string]string{
		protocol.ResponseType: protocol.ResponseTemporary,
		protocol.State:        "xyz",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var temporary soauth.CodeResponse
	decode(t, w, &temporary)
	assert.True(t, temporary.State)

	w = post(router, "/oauth2", clientForm(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         temporary.Code,
		protocol.Username:     "alice",
		protocol.Password:     "alice-password",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var authorised soauth.CodeResponse
	decode(t, w, &authorised)

	w = post(router, "/oauth2", clientForm(map[string]string{
		protocol.ResponseType: protocol.ResponseToken,
		protocol.Code:         authorised.Code,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tok soauth.TokenResponse
	decode(t, w, &tok)

	return tok
}

func TestListenHandlerFlow(t *testing.T) {
	router, owner := setupRouter(t)

	tok := issueToken(t, router)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, soauth.TokenType, tok.TokenType)
	assert.Equal(t, "PT4H", tok.ExpiresIn)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var grant domain.ResourceGrant
	decode(t, w, &grant)
	assert.Equal(t, owner.ID, grant.ResourceOwnerID)
	assert.Equal(t, "client-app", grant.ClientID)
}

func TestListenHandlerResourceQuery(t *testing.T) {
	router, owner := setupRouter(t)
	tok := issueToken(t, router)

	req := httptest.NewRequest(http.MethodGet, "/oauth2?oauth_access_token="+url.QueryEscape(tok.AccessToken), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var grant domain.ResourceGrant
	decode(t, w, &grant)
	assert.Equal(t, owner.ID, grant.ResourceOwnerID)
}

func TestListenHandlerErrors(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("no parameters", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth2", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body serrors.OAuth2Error
		decode(t, w, &body)
		assert.Equal(t, serrors.InvalidRequest, body.Code)
	})

	t.Run("wrong client password", func(t *testing.T) {
		form := clientForm(map[string]string{
			protocol.ResponseType: protocol.ResponseTemporary,
			protocol.State:        "s1",
		})
		form.Set(protocol.ParamPrefix+protocol.ClientSecret, credentials.EncodeClientSecret("nonce", "nope", restKey))
		w := post(router, "/oauth2", form)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body serrors.OAuth2Error
		decode(t, w, &body)
		assert.Equal(t, serrors.UnauthorizedClient, body.Code)
		assert.Equal(t, "s1", body.State)
	})

	t.Run("unknown response type", func(t *testing.T) {
		w := post(router, "/oauth2", clientForm(map[string]string{protocol.ResponseType: "bogus"}))

		var body serrors.OAuth2Error
		decode(t, w, &body)
		assert.Equal(t, serrors.InvalidRequest, body.Code)
	})
}

func TestListenHandlerJSONP(t *testing.T) {
	router, _ := setupRouter(t)

	q := clientForm(map[string]string{protocol.ResponseType: protocol.ResponseTemporary})
	q.Set("callback", "handle")
	req := httptest.NewRequest(http.MethodGet, "/oauth2?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Body.String(), "handle("), w.Body.String())
}

func TestRevokeHandler(t *testing.T) {
	router, _ := setupRouter(t)
	tok := issueToken(t, router)

	w := post(router, "/oauth2/revoke", clientForm(map[string]string{protocol.AccessToken: tok.AccessToken}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var state soauth.StateResponse
	decode(t, w, &state)
	assert.False(t, state.State)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDenyHandler(t *testing.T) {
	router, _ := setupRouter(t)

	w := post(router, "/oauth2", clientForm(map[string]string{protocol.ResponseType: protocol.ResponseTemporary}))
	require.Equal(t, http.StatusOK, w.Code)
	var temporary soauth.CodeResponse
	decode(t, w, &temporary)

	w = post(router, "/oauth2/deny", clientForm(map[string]string{protocol.Code: temporary.Code}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = post(router, "/oauth2", clientForm(map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         temporary.Code,
	}))
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestResourceMiddleware(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing token"},
		{name: "unknown token", header: "Bearer does-not-exist"},
		{name: "wrong scheme", header: "Basic Zm9vOmJhcg=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var body serrors.OAuth2Error
			decode(t, w, &body)
			assert.Equal(t, serrors.InvalidToken, body.Code)
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth2", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
