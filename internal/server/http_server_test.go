package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	soauth "github.com/pilab-dev/shadow-oauth"
	ginapi "github.com/pilab-dev/shadow-oauth/api/gin"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/memstore"
	"github.com/pilab-dev/shadow-oauth/services"
)

func newTestRouter(t *testing.T, buf *bytes.Buffer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.NewWriterLogger(buf, zerolog.DebugLevel)
	users := services.NewUserService(memstore.NewUserStore(), auth.NewBcryptPasswordHasher(bcrypt.MinCost))
	srv := soauth.NewServer(memstore.NewCredentialStore(nil), users, soauth.WithLogger(logger))

	cfg := &config.ServerConfig{OtelServiceName: "shadow-oauth-test"}

	return NewRouter(cfg, logger, ginapi.NewOAuth2API(srv, logger), prometheus.NewRegistry(), nil)
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Contains(t, buf.String(), generated)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestRouterServesProtocolEndpoint(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth2", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, buf.String(), `"path":"/oauth2"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
