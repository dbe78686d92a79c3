// Package oauthclient drives the three-legged credential flow against a
// shadow-oauth server and exposes the result as an oauth2.Token.
package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/pilab-dev/shadow-oauth/credentials"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/protocol"
	"github.com/pilab-dev/shadow-oauth/signer"
)

var (
	ErrMissingEndpoint     = errors.New("oauthclient: endpoint is required")
	ErrMissingClient       = errors.New("oauthclient: client name and password are required")
	ErrNoRefreshToken      = errors.New("oauthclient: token has no refresh token")
	ErrUnexpectedResponse  = errors.New("oauthclient: unexpected response")
	ErrUnexpectedMediaType = errors.New("oauthclient: response is not JSON")
)

const maxResponseBytes = 1 << 20

// Config identifies the client account and the server endpoint.
type Config struct {
	// Endpoint is the protocol URL, e.g. https://auth.example.com/oauth2.
	Endpoint string

	ClientName     string
	ClientPassword string
	// RestKey is mixed into the encoded client id and secret. Every request
	// of one flow must use the same key.
	RestKey string

	// SignatureMethod defaults to PLAINTEXT. HMAC-SHA1 requests are signed.
	SignatureMethod string
	RedirectURI     string
}

// ResourceOwner authorises temporary credentials on the owner's behalf. A
// nil owner makes the server fall back to the client account.
type ResourceOwner struct {
	Username string
	Password string
}

// Client talks to one server endpoint.
type Client struct {
	cfg        Config
	endpoint   *url.URL
	signer     signer.Signer
	httpClient *http.Client
	nonces     credentials.KeyGenerator
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport. http.DefaultClient is used otherwise.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNonceGenerator replaces the random nonce in client_secret.
func WithNonceGenerator(keys credentials.KeyGenerator) Option {
	return func(c *Client) { c.nonces = keys }
}

// WithClock sets the time source used to compute token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.ClientName == "" || cfg.ClientPassword == "" {
		return nil, ErrMissingClient
	}
	if cfg.SignatureMethod == "" {
		cfg.SignatureMethod = signer.MethodPlaintext
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: parse endpoint: %w", err)
	}

	s, err := signer.New(cfg.SignatureMethod)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		signer:     s,
		httpClient: http.DefaultClient,
		nonces:     credentials.RandomKeys{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// FetchToken runs all three legs: temporary credentials, authorisation and
// the exchange for token credentials.
func (c *Client) FetchToken(ctx context.Context, owner *ResourceOwner) (*oauth2.Token, error) {
	code, err := c.Temporary(ctx)
	if err != nil {
		return nil, fmt.Errorf("temporary credentials: %w", err)
	}

	code, err = c.Authorise(ctx, code, owner)
	if err != nil {
		return nil, fmt.Errorf("authorise: %w", err)
	}

	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	return tok, nil
}

// Temporary requests temporary credentials and returns their code.
func (c *Client) Temporary(ctx context.Context) (string, error) {
	params := map[string]string{protocol.ResponseType: protocol.ResponseTemporary}
	if c.cfg.RedirectURI != "" {
		params[protocol.RedirectURI] = c.cfg.RedirectURI
	}

	var resp codeResponse
	if err := c.post(ctx, c.endpoint, params, "", &resp); err != nil {
		return "", err
	}

	return resp.Code, nil
}

// Authorise authorises the temporary credentials identified by code and
// returns the rotated code.
func (c *Client) Authorise(ctx context.Context, code string, owner *ResourceOwner) (string, error) {
	params := map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.GrantType:    "authorization_code",
		protocol.Code:         code,
	}
	if owner != nil {
		params[protocol.Username] = owner.Username
		params[protocol.Password] = owner.Password
	}

	var resp codeResponse
	if err := c.post(ctx, c.endpoint, params, code, &resp); err != nil {
		return "", err
	}

	return resp.Code, nil
}

// Exchange converts authorised credentials into token credentials.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	params := map[string]string{
		protocol.ResponseType: protocol.ResponseToken,
		protocol.Code:         code,
	}

	return c.token(ctx, params, code)
}

// Refresh rotates both tokens of tok.
func (c *Client) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	params := map[string]string{
		protocol.ResponseType: protocol.ResponseRefreshToken,
		protocol.RefreshToken: tok.RefreshToken,
	}

	return c.token(ctx, params, tok.AccessToken)
}

// Revoke deletes the token credentials behind tok.
func (c *Client) Revoke(ctx context.Context, tok *oauth2.Token) error {
	params := map[string]string{protocol.AccessToken: tok.AccessToken}

	var resp stateResponse
	return c.post(ctx, c.endpoint.JoinPath("revoke"), params, tok.AccessToken, &resp)
}

// Deny rejects the temporary credentials identified by code.
func (c *Client) Deny(ctx context.Context, code string) error {
	params := map[string]string{
		protocol.ResponseType: protocol.ResponseAuthorise,
		protocol.Code:         code,
	}

	var resp stateResponse
	return c.post(ctx, c.endpoint.JoinPath("deny"), params, code, &resp)
}

// TokenSource returns a source that serves tok until it expires and then
// refreshes it.
func (c *Client) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tok, &refresher{ctx: ctx, client: c, tok: tok})
}

// HTTPClient returns an http.Client that sends the access token as a Bearer
// Authorization header, refreshing it when needed.
func (c *Client) HTTPClient(ctx context.Context, tok *oauth2.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, c.TokenSource(ctx, tok))
}

type refresher struct {
	ctx    context.Context
	client *Client
	tok    *oauth2.Token
}

func (r *refresher) Token() (*oauth2.Token, error) {
	tok, err := r.client.Refresh(r.ctx, r.tok)
	if err != nil {
		return nil, err
	}
	r.tok = tok

	return tok, nil
}

type codeResponse struct {
	Code string `json:"oauth_code"`
}

type stateResponse struct {
	State bool `json:"oauth_state"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    string `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) token(ctx context.Context, params map[string]string, tokenSecret string) (*oauth2.Token, error) {
	issued := c.now()

	var resp tokenResponse
	if err := c.post(ctx, c.endpoint, params, tokenSecret, &resp); err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
	}

	if resp.ExpiresIn != "" {
		lifetime, err := credentials.ParseLifetime(resp.ExpiresIn)
		if err != nil {
			return nil, fmt.Errorf("%w: expires_in %q: %v", ErrUnexpectedResponse, resp.ExpiresIn, err)
		}
		tok.Expiry = issued.Add(lifetime)
	}

	return tok, nil
}

// clientParams returns the client authentication parameters. A fresh nonce
// is drawn for every request.
func (c *Client) clientParams() (map[string]string, error) {
	nonce, err := c.nonces.NewKey()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		protocol.ClientID:        credentials.EncodeClientID(c.cfg.ClientName, c.cfg.RestKey),
		protocol.ClientSecret:    credentials.EncodeClientSecret(nonce, c.cfg.ClientPassword, c.cfg.RestKey),
		protocol.SignatureMethod: c.cfg.SignatureMethod,
	}, nil
}

func (c *Client) post(ctx context.Context, target *url.URL, extra map[string]string, tokenSecret string, into interface{}) error {
	params, err := c.clientParams()
	if err != nil {
		return err
	}
	for k, v := range extra {
		params[k] = v
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(protocol.ParamPrefix+k, v)
	}

	if c.signer.Method() != signer.MethodPlaintext {
		signature, err := c.signer.Sign(
			protocol.BaseString(http.MethodPost, target, params),
			credentials.SecretKey(c.cfg.ClientPassword, c.cfg.RestKey),
			tokenSecret,
		)
		if err != nil {
			return err
		}
		form.Set(protocol.ParamPrefix+protocol.Signature, signature)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if mt, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type")); mt != "application/json" {
		return fmt.Errorf("%w: %s (status %d)", ErrUnexpectedMediaType, mt, res.StatusCode)
	}

	if res.StatusCode != http.StatusOK {
		var oauthErr serrors.OAuth2Error
		if err := json.Unmarshal(body, &oauthErr); err != nil || oauthErr.Code == "" {
			return fmt.Errorf("%w: status %d", ErrUnexpectedResponse, res.StatusCode)
		}
		oauthErr.Status = res.StatusCode

		return &oauthErr
	}

	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	return nil
}
