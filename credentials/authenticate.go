package credentials

import (
	"context"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/protocol"
)

// PasswordVerifier checks a password against a stored hash.
type PasswordVerifier interface {
	Verify(hashedPassword, password string) error
}

// ResolveClientCredentials finds the caller's username and password. Basic
// credentials in any header variant are preferred; otherwise both are decoded
// from client_id and client_secret. ok is false unless both were found.
func ResolveClientCredentials(headers protocol.CredentialHeaders, clientID, clientSecret string) (user, password string, ok bool) {
	for _, variant := range protocol.CredentialVariants() {
		encUser, hasUser := headers[variant+"USER"]
		encPW, hasPW := headers[variant+"PW"]
		if !hasUser || !hasPW {
			continue
		}

		u, errU := unb64(encUser)
		p, errP := unb64(encPW)
		if errU == nil && errP == nil && u != "" && p != "" {
			return u, p, true
		}
	}

	u, errU := DecodeClientID(clientID)
	p, errP := DecodeClientPassword(clientSecret)
	if errU != nil || errP != nil {
		return "", "", false
	}

	return u, p, true
}

// AuthenticateClient verifies the request's client credentials against the
// stored client account.
func (c *Credentials) AuthenticateClient(ctx context.Context, client domain.User, verifier PasswordVerifier) (bool, error) {
	user, password, ok := ResolveClientCredentials(c.request.Headers, c.request.ClientID(), c.request.ClientSecret())
	if !ok {
		return false, ErrMissingCredentials
	}

	if user != client.Username {
		c.logger.Debug(ctx, "Client credentials name a different user", map[string]interface{}{
			"client": client.Username,
		})
		return false, nil
	}

	if err := verifier.Verify(client.PasswordHash, password); err != nil {
		c.logger.Debug(ctx, "Client password verification failed", map[string]interface{}{
			"client": client.Username,
			"reason": err.Error(),
		})
		return false, nil
	}

	return true, nil
}
