package oauthgin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	soauth "github.com/pilab-dev/shadow-oauth"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/protocol"
)

// OAuth2API exposes a soauth.Server over HTTP.
type OAuth2API struct {
	server *soauth.Server
	logger log.Logger
}

// NewOAuth2API initializes the API.
func NewOAuth2API(server *soauth.Server, logger log.Logger) *OAuth2API {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &OAuth2API{server: server, logger: logger}
}

// RegisterRoutes registers the protocol endpoints and the protected
// resource group.
func (oa *OAuth2API) RegisterRoutes(e *gin.Engine) {
	e.GET("/oauth2", oa.ListenHandler)
	e.POST("/oauth2", oa.ListenHandler)
	e.OPTIONS("/oauth2", oa.ListenHandler)
	e.POST("/oauth2/revoke", oa.RevokeHandler)
	e.POST("/oauth2/deny", oa.DenyHandler)

	api := e.Group("/api", ResourceMiddleware(oa.server, oa.logger))
	api.GET("/me", oa.MeHandler)
}

// ListenHandler drives the credential lifecycle: temporary, authorise,
// token and refresh_token requests, and access_token checks.
func (oa *OAuth2API) ListenHandler(c *gin.Context) {
	oa.serve(c, oa.server.Listen)
}

// RevokeHandler deletes token credentials.
func (oa *OAuth2API) RevokeHandler(c *gin.Context) {
	oa.serve(c, oa.server.Revoke)
}

// DenyHandler rejects pending temporary credentials.
func (oa *OAuth2API) DenyHandler(c *gin.Context) {
	oa.serve(c, oa.server.Deny)
}

// MeHandler returns the grant resolved by ResourceMiddleware.
func (oa *OAuth2API) MeHandler(c *gin.Context) {
	grant, ok := GrantFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serrors.NewInvalidToken("No access token was presented."))
		return
	}

	c.JSON(http.StatusOK, grant)
}

type protocolHandler func(ctx context.Context, req *protocol.Request) (*soauth.Response, error)

func (oa *OAuth2API) serve(c *gin.Context, handle protocolHandler) {
	req, err := protocol.Parse(c.Request)
	if err != nil {
		oa.writeError(c, req, err)
		return
	}

	resp, err := handle(c.Request.Context(), req)
	if err != nil {
		oa.writeError(c, req, err)
		return
	}

	metrics.RequestsTotal.WithLabelValues(requestLabel(req), "ok").Inc()
	write(c, req, resp.Status, resp.Body)
}

func (oa *OAuth2API) writeError(c *gin.Context, req *protocol.Request, err error) {
	oauthErr := soauth.ToOAuth2Error(err)
	if req != nil {
		oauthErr = oauthErr.WithState(req.State())
	}

	status := oauthErr.HTTPStatus()
	fields := log.Fields{
		"path":   c.Request.URL.Path,
		"status": status,
		"code":   oauthErr.Code,
	}
	if status >= http.StatusInternalServerError {
		oa.logger.Error(c.Request.Context(), "protocol request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		oa.logger.Debug(c.Request.Context(), "protocol request rejected", fields)
	}

	metrics.RequestsTotal.WithLabelValues(requestLabel(req), oauthErr.Code).Inc()
	write(c, req, status, oauthErr)
}

// write renders body as JSON, or as JSONP when the request named a callback.
func write(c *gin.Context, req *protocol.Request, status int, body interface{}) {
	if req != nil && req.Callback != "" {
		c.JSONP(status, body)
		return
	}

	c.JSON(status, body)
}

func requestLabel(req *protocol.Request) string {
	switch {
	case req == nil:
		return "none"
	case req.ResponseType() != "":
		return req.ResponseType()
	case req.AccessToken() != "":
		return "resource"
	default:
		return "none"
	}
}
