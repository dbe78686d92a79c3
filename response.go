package soauth

import (
	"net/http"
	"time"

	"github.com/pilab-dev/shadow-oauth/credentials"
	"github.com/pilab-dev/shadow-oauth/domain"
)

// Response is the outcome of a successful request. Body is serialised as
// JSON, or JSONP when the request named a callback.
type Response struct {
	Status int
	Body   interface{}
	// Grant is set for protected resource access.
	Grant *domain.ResourceGrant
}

// CodeResponse carries the temporary token after initialise and authorise.
// State is always true.
type CodeResponse struct {
	Code  string `json:"oauth_code"`
	State bool   `json:"oauth_state"`
}

// TokenResponse carries token credentials after convert and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    string `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// StateResponse acknowledges deny and revoke. State is always false.
type StateResponse struct {
	State bool `json:"oauth_state"`
}

// TokenType is reported in token responses.
const TokenType = "bearer"

func codeResponse(code string) *Response {
	return &Response{Status: http.StatusOK, Body: CodeResponse{Code: code, State: true}}
}

func stateResponse(state bool) *Response {
	return &Response{Status: http.StatusOK, Body: StateResponse{State: state}}
}

func (s *Server) tokenResponse(cred *credentials.Credentials) *Response {
	expiresIn := s.lifetimes.Token
	if exp := cred.ExpirationDate(); !exp.IsZero() {
		expiresIn = exp.Sub(s.clock.Now()).Round(time.Second)
	}

	return &Response{Status: http.StatusOK, Body: TokenResponse{
		AccessToken:  cred.AccessToken(),
		TokenType:    TokenType,
		ExpiresIn:    credentials.FormatLifetime(expiresIn),
		RefreshToken: cred.RefreshToken(),
	}}
}
