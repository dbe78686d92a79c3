package errors

import (
	"fmt"
	"net/http"
)

// OAuth2Error is the error body returned to clients.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`

	// Status is the HTTP status the error is served with.
	Status int `json:"-"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the response status for the error, defaulting to 400.
func (e *OAuth2Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}

	return e.Status
}

// WithState returns a copy of the error carrying the request state.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	c := *e
	c.State = state

	return &c
}

// Error codes used by the credential protocol.
const (
	InvalidRequest     = "invalid_request"
	UnauthorizedClient = "unauthorized_client"
	AccessDenied       = "access_denied"
	InvalidClient      = "invalid_client"
	InvalidGrant       = "invalid_grant"
	InvalidToken       = "invalid_token"
	ServerError        = "server_error"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description, Status: http.StatusForbidden}
}

// NewInvalidToken is used by the resource endpoints when the bearer token
// does not resolve.
func NewInvalidToken(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidToken, Description: description, Status: http.StatusUnauthorized}
}

// NewConflict reports a lost optimistic update on a credential.
func NewConflict(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description, Status: http.StatusConflict}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description, Status: http.StatusInternalServerError}
}
