package credentials

import "errors"

var (
	ErrInvalidTransition     = errors.New("invalid credential state transition")
	ErrInvalidCredentialType = errors.New("invalid credential type")
	ErrCredentialsNotFound   = errors.New("oauth credentials not found")
	ErrMissingCredentials    = errors.New("username or password is not set")
	ErrInvalidSignature      = errors.New("invalid oauth request signature")
	ErrInvalidLifetime       = errors.New("invalid credential lifetime")
)
