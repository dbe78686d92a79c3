package oauthgin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	soauth "github.com/pilab-dev/shadow-oauth"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/protocol"
)

// GrantKey is the gin context key holding the validated domain.ResourceGrant.
const GrantKey = "oauth-resource-grant"

// ResourceMiddleware guards a route group with token credentials. The access
// token is read from the protocol parameters or from a Bearer Authorization
// header.
func ResourceMiddleware(server *soauth.Server, logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel.GetTracerProvider().Tracer("").Start(c.Request.Context(), "ResourceMiddleware")
		defer span.End()

		req, err := protocol.Parse(c.Request)
		if req == nil {
			span.SetStatus(codes.Error, "malformed request")
			c.AbortWithStatusJSON(http.StatusBadRequest, serrors.NewInvalidRequest("Malformed request."))
			return
		}
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok && req.AccessToken() == "" {
			req.Set(protocol.AccessToken, token)
			err = nil
		}
		if err != nil || req.AccessToken() == "" {
			span.SetStatus(codes.Error, "missing access token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, serrors.NewInvalidToken("No access token was presented."))
			return
		}

		grant, err := server.Validate(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid access token")

			oauthErr := soauth.ToOAuth2Error(err)
			if oauthErr.HTTPStatus() >= http.StatusInternalServerError {
				logger.Error(ctx, "access token validation failed", err)
				c.AbortWithStatusJSON(oauthErr.HTTPStatus(), oauthErr)
				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, serrors.NewInvalidToken(oauthErr.Description))
			return
		}

		span.SetAttributes(
			attribute.Int64("oauth.resource_owner_id", grant.ResourceOwnerID),
			attribute.String("oauth.client_id", grant.ClientID),
		)

		c.Set(GrantKey, grant)
		c.Request = c.Request.WithContext(domain.ContextWithGrant(ctx, grant))
		c.Next()
	}
}

// GrantFromContext returns the grant set by ResourceMiddleware.
func GrantFromContext(c *gin.Context) (domain.ResourceGrant, bool) {
	v, ok := c.Get(GrantKey)
	if !ok {
		return domain.GrantFromContext(c.Request.Context())
	}

	grant, ok := v.(domain.ResourceGrant)

	return grant, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(header[len(prefix):]), true
}
