// Package protocol extracts credential protocol parameters from inbound HTTP
// requests.
package protocol

// ParamPrefix prefixes every reserved parameter on the wire.
const ParamPrefix = "oauth_"

// Reserved parameter names, without the wire prefix.
const (
	ClientID         = "client_id"
	ClientSecret     = "client_secret"
	SignatureMethod  = "signature_method"
	ResponseType     = "response_type"
	Scope            = "scope"
	State            = "state"
	RedirectURI      = "redirect_uri"
	Error            = "error"
	ErrorDescription = "error_description"
	ErrorURI         = "error_uri"
	GrantType        = "grant_type"
	Code             = "code"
	AccessToken      = "access_token"
	TokenType        = "token_type"
	ExpiresIn        = "expires_in"
	Username         = "username"
	Password         = "password"
	RefreshToken     = "refresh_token"

	// Signature is consumed for verification and never kept among the
	// request parameters.
	Signature = "signature"
)

var reserved = []string{
	ClientID, ClientSecret, SignatureMethod, ResponseType, Scope, State,
	RedirectURI, Error, ErrorDescription, ErrorURI, GrantType, Code,
	AccessToken, TokenType, ExpiresIn, Username, Password, RefreshToken,
}

var reservedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(reserved))
	for _, k := range reserved {
		m[k] = struct{}{}
	}
	return m
}()

// ReservedParameters returns the accepted parameter names.
func ReservedParameters() []string {
	out := make([]string, len(reserved))
	copy(out, reserved)
	return out
}

// IsReserved reports whether name (without prefix) is an accepted parameter.
func IsReserved(name string) bool {
	_, ok := reservedSet[name]
	return ok
}

// Response types understood by the dispatcher.
const (
	ResponseTemporary    = "temporary"
	ResponseAuthorise    = "authorise"
	ResponseToken        = "token"
	ResponseRefreshToken = "refresh_token"
)
