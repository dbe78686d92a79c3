package domain

import (
	"context"
	"time"
)

// ResourceGrant describes a validated access token.
type ResourceGrant struct {
	CredentialID    int64     `json:"-"`
	ResourceOwnerID int64     `json:"resource_owner_id"`
	ClientID        string    `json:"client_id"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type grantContextKey struct{}

// ContextWithGrant stores a validated grant on the context.
func ContextWithGrant(ctx context.Context, grant ResourceGrant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, grant)
}

// GrantFromContext retrieves the grant stored by ContextWithGrant.
func GrantFromContext(ctx context.Context) (ResourceGrant, bool) {
	grant, ok := ctx.Value(grantContextKey{}).(ResourceGrant)
	return grant, ok
}
