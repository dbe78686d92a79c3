package soauth

import (
	"errors"

	"github.com/pilab-dev/shadow-oauth/credentials"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/protocol"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/pilab-dev/shadow-oauth/signer"
)

var (
	ErrUnknownResponseType = errors.New("unknown response type")
	ErrMissingClientParams = errors.New("client_id, client_secret and signature_method are required")
	ErrUnknownClient       = errors.New("unknown oauth client")
	ErrClientAuthFailed    = errors.New("client credentials are not valid")
	ErrClientMismatch      = errors.New("credentials were issued to another client")
	ErrInvalidCode         = errors.New("temporary token does not match")
	ErrNotSignedIn         = errors.New("no authenticated resource owner")
	ErrResourceOwnerAuth   = errors.New("resource owner credentials are not valid")
	ErrNotTokenCredentials = errors.New("credentials are not token credentials")
	ErrMissingToken        = errors.New("access_token or refresh_token is required")
)

var errorTable = []struct {
	err  error
	wire func() *serrors.OAuth2Error
}{
	{ErrUnknownResponseType, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("No valid response type was found.")
	}},
	{protocol.ErrNoParameters, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("No OAuth parameters were found in the request.")
	}},
	{ErrMissingClientParams, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("Invalid OAuth Request signature.")
	}},
	{ErrMissingToken, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("An access token or refresh token is required.")
	}},
	{signer.ErrUnsupportedSignatureMethod, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("The signature method is not supported.")
	}},
	{signer.ErrInvalidSignatureMethod, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("The signature method is not valid.")
	}},
	{signer.ErrInvalidSecret, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("The client secret is malformed.")
	}},
	{credentials.ErrInvalidSignature, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("Invalid OAuth request signature.")
	}},
	{ErrUnknownClient, func() *serrors.OAuth2Error {
		return serrors.NewUnauthorizedClient("The OAuth consumer key is not valid.")
	}},
	{ErrClientAuthFailed, func() *serrors.OAuth2Error {
		return serrors.NewUnauthorizedClient("The credentials are not valid.")
	}},
	{credentials.ErrMissingCredentials, func() *serrors.OAuth2Error {
		return serrors.NewUnauthorizedClient("The credentials are not valid.")
	}},
	{ErrClientMismatch, func() *serrors.OAuth2Error {
		return serrors.NewUnauthorizedClient("The credentials were not issued to this client.")
	}},
	{ErrNotSignedIn, func() *serrors.OAuth2Error {
		return serrors.NewUnauthorizedClient("You must first sign in.")
	}},
	{ErrInvalidCode, func() *serrors.OAuth2Error {
		return serrors.NewInvalidGrant("Temporary token is not valid")
	}},
	{ErrResourceOwnerAuth, func() *serrors.OAuth2Error {
		return serrors.NewInvalidGrant("The resource owner credentials are not valid.")
	}},
	{credentials.ErrInvalidTransition, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("The credentials do not allow this request in their current state.")
	}},
	{credentials.ErrCredentialsNotFound, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("OAuth credentials not found.")
	}},
	{ErrNotTokenCredentials, func() *serrors.OAuth2Error {
		return serrors.NewInvalidRequest("The token is not for a valid credentials yet.")
	}},
	{domain.ErrConcurrentUpdate, func() *serrors.OAuth2Error {
		return serrors.NewConflict("The credentials were modified by a concurrent request.")
	}},
}

// ToOAuth2Error maps an error returned by the server onto the wire error.
// Anything not recognised is a server error.
func ToOAuth2Error(err error) *serrors.OAuth2Error {
	var oauthErr *serrors.OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}

	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.wire()
		}
	}

	return serrors.NewServerError("The server could not process the request.")
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func isInvalidCredentials(err error) bool {
	return errors.Is(err, services.ErrInvalidCredentials)
}
