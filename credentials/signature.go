package credentials

import (
	"context"
	"fmt"

	"github.com/pilab-dev/shadow-oauth/signer"
)

// VerifySignature checks oauth_signature when the request carries one. The
// signing secrets are the client's secret key and the token identifying the
// currently bound credential.
func (c *Credentials) VerifySignature(ctx context.Context) error {
	if c.request.Signature == "" {
		return nil
	}

	var clientSecret string
	if raw := c.request.ClientSecret(); raw != "" {
		secret, err := c.signer.SecretDecode(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		clientSecret = secret
	}

	expected, err := c.signer.Sign(c.request.BaseString(), clientSecret, c.TokenSecret())
	if err != nil {
		return err
	}

	if !signer.Equal(expected, c.request.Signature) {
		c.logger.Warn(ctx, "Request signature mismatch", map[string]interface{}{
			"method": c.signer.Method(),
			"state":  c.state.String(),
		})
		return ErrInvalidSignature
	}

	return nil
}

// TokenSecret returns the credential secret used for signing in the current
// state.
func (c *Credentials) TokenSecret() string {
	switch c.state {
	case StateTemporary, StateAuthorised:
		return c.record.TemporaryToken
	case StateToken:
		return c.record.AccessToken
	default:
		return ""
	}
}
