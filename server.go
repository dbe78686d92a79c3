// Package soauth implements a three-legged credential server: temporary
// credentials, authorisation by a resource owner, token exchange and
// protected resource access.
package soauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pilab-dev/shadow-oauth/credentials"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/protocol"
)

// Users resolves client accounts and authenticates resource owners.
type Users interface {
	GetClient(ctx context.Context, username string) (domain.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (int64, error)
	credentials.PasswordVerifier
}

// Lifetimes holds how long each credential stage stays valid.
type Lifetimes struct {
	Temporary time.Duration
	// Authorised may be zero for authorisations that never expire.
	Authorised time.Duration
	Token      time.Duration
}

// DefaultLifetimes uses four hours for every stage.
func DefaultLifetimes() Lifetimes {
	return Lifetimes{
		Temporary:  credentials.DefaultLifetimeDuration,
		Authorised: credentials.DefaultLifetimeDuration,
		Token:      credentials.DefaultLifetimeDuration,
	}
}

// Server dispatches protocol requests to credential lifecycle operations.
// It holds no per-request state and is safe for concurrent use.
type Server struct {
	store     domain.CredentialStore
	users     Users
	clock     domain.Clock
	keys      credentials.KeyGenerator
	lifetimes Lifetimes
	logger    log.Logger
	observer  credentials.Observer
}

// Option configures a Server.
type Option func(*Server)

func WithClock(clock domain.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

func WithKeyGenerator(keys credentials.KeyGenerator) Option {
	return func(s *Server) { s.keys = keys }
}

func WithLifetimes(l Lifetimes) Option {
	return func(s *Server) { s.lifetimes = l }
}

func WithLogger(logger log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithObserver replaces the transition observer. The default records
// metrics and audit events.
func WithObserver(o credentials.Observer) Option {
	return func(s *Server) { s.observer = o }
}

func NewServer(store domain.CredentialStore, users Users, opts ...Option) *Server {
	s := &Server{
		store:     store,
		users:     users,
		clock:     domain.SystemClock,
		keys:      credentials.RandomKeys{},
		lifetimes: DefaultLifetimes(),
		logger:    log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.observer == nil {
		s.observer = NewLifecycleObserver(s.logger, nil)
	}

	return s
}

// Listen handles one protocol request. Requests with a response_type and no
// access_token drive the credential lifecycle; requests with an access_token
// are protected resource access.
func (s *Server) Listen(ctx context.Context, req *protocol.Request) (*Response, error) {
	switch {
	case req.Has(protocol.ResponseType) && !req.Has(protocol.AccessToken):
		return s.dispatch(ctx, req)
	case req.Has(protocol.AccessToken):
		return s.resource(ctx, req)
	default:
		return nil, protocol.ErrNoParameters
	}
}

func (s *Server) dispatch(ctx context.Context, req *protocol.Request) (*Response, error) {
	var handle func(context.Context, *credentials.Credentials, *protocol.Request, domain.User) (*Response, error)

	switch req.ResponseType() {
	case protocol.ResponseTemporary:
		handle = s.initialise
	case protocol.ResponseAuthorise:
		handle = s.authorise
	case protocol.ResponseToken:
		handle = s.convert
	case protocol.ResponseRefreshToken:
		handle = s.refresh
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResponseType, req.ResponseType())
	}

	cred, client, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	return handle(ctx, cred, req, client)
}

// authenticate performs the checks every lifecycle request shares: the
// client parameters are present, the client exists and its password
// verifies.
func (s *Server) authenticate(ctx context.Context, req *protocol.Request) (*credentials.Credentials, domain.User, error) {
	if req.ClientID() == "" || req.ClientSecret() == "" || req.SignatureMethod() == "" {
		return nil, domain.User{}, ErrMissingClientParams
	}

	cred, err := s.newCredentials(req)
	if err != nil {
		return nil, domain.User{}, err
	}

	client, err := s.fetchClient(ctx, req.ClientID())
	if err != nil {
		return nil, domain.User{}, err
	}

	ok, err := cred.AuthenticateClient(ctx, client, s.users)
	if err != nil {
		return nil, domain.User{}, err
	}
	if !ok {
		s.logger.Warn(ctx, "Client authentication failed", log.Fields{"client": client.Username})
		clientAuthFailed()
		return nil, domain.User{}, ErrClientAuthFailed
	}

	return cred, client, nil
}

func (s *Server) newCredentials(req *protocol.Request) (*credentials.Credentials, error) {
	return credentials.New(req, s.store,
		credentials.WithClock(s.clock),
		credentials.WithKeyGenerator(s.keys),
		credentials.WithLogger(s.logger),
		credentials.WithObserver(s.observer),
	)
}

func (s *Server) fetchClient(ctx context.Context, clientID string) (domain.User, error) {
	username, err := credentials.DecodeClientID(clientID)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrUnknownClient, err)
	}

	client, err := s.users.GetClient(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, fmt.Errorf("%w: %s", ErrUnknownClient, username)
		}
		return domain.User{}, fmt.Errorf("fetch client: %w", err)
	}

	if client.Username != username {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUnknownClient, username)
	}

	return client, nil
}

func (s *Server) initialise(ctx context.Context, cred *credentials.Credentials, req *protocol.Request, client domain.User) (*Response, error) {
	if err := cred.VerifySignature(ctx); err != nil {
		return nil, err
	}

	if err := cred.Initialise(ctx, client.Username, req.Get(protocol.RedirectURI), s.lifetimes.Temporary); err != nil {
		return nil, err
	}

	return codeResponse(cred.TemporaryToken()), nil
}

func (s *Server) authorise(ctx context.Context, cred *credentials.Credentials, req *protocol.Request, client domain.User) (*Response, error) {
	if err := s.load(ctx, cred, client); err != nil {
		return nil, err
	}

	if !cred.Allows(credentials.OpAuthorise) {
		return nil, fmt.Errorf("%w: cannot authorise %s credentials", credentials.ErrInvalidTransition, cred.State())
	}

	if err := cred.VerifySignature(ctx); err != nil {
		return nil, err
	}

	if req.Has(protocol.Code) && req.Code() != cred.TemporaryToken() {
		return nil, ErrInvalidCode
	}

	owner, err := s.resourceOwner(ctx, req, client)
	if err != nil {
		return nil, err
	}

	if err := cred.Authorise(ctx, owner, s.lifetimes.Authorised); err != nil {
		return nil, err
	}

	return codeResponse(cred.TemporaryToken()), nil
}

// resourceOwner picks the user the credentials are authorised for: the
// username/password pair in the request when present, otherwise the
// authenticated client account itself.
func (s *Server) resourceOwner(ctx context.Context, req *protocol.Request, client domain.User) (int64, error) {
	username, password := req.Get(protocol.Username), req.Get(protocol.Password)

	owner := client.ID
	if username != "" || password != "" {
		id, err := s.users.AuthenticateUser(ctx, username, password)
		if err != nil {
			if isNotFound(err) || isInvalidCredentials(err) {
				return 0, ErrResourceOwnerAuth
			}
			return 0, fmt.Errorf("authenticate resource owner: %w", err)
		}
		owner = id
	}

	if owner <= 0 {
		return 0, ErrNotSignedIn
	}

	return owner, nil
}

func (s *Server) convert(ctx context.Context, cred *credentials.Credentials, req *protocol.Request, client domain.User) (*Response, error) {
	if err := s.load(ctx, cred, client); err != nil {
		return nil, err
	}

	if err := cred.VerifySignature(ctx); err != nil {
		return nil, err
	}

	if cred.State() == credentials.StateAuthorised && req.Has(protocol.Code) && req.Code() != cred.TemporaryToken() {
		return nil, ErrInvalidCode
	}
	if err := cred.Convert(ctx, s.lifetimes.Token); err != nil {
		return nil, err
	}

	return s.tokenResponse(cred), nil
}

// refresh rotates the token pair of the credentials named by refresh_token.
// Without it Load would fall back to the client's latest credentials.
func (s *Server) refresh(ctx context.Context, cred *credentials.Credentials, req *protocol.Request, client domain.User) (*Response, error) {
	if !req.Has(protocol.RefreshToken) {
		return nil, ErrMissingToken
	}

	if err := s.load(ctx, cred, client); err != nil {
		return nil, err
	}

	if err := cred.VerifySignature(ctx); err != nil {
		return nil, err
	}

	if err := cred.Refresh(ctx, s.lifetimes.Token); err != nil {
		return nil, err
	}

	return s.tokenResponse(cred), nil
}

// load binds the credentials referenced by the request and checks they
// belong to the authenticated client.
func (s *Server) load(ctx context.Context, cred *credentials.Credentials, client domain.User) error {
	found, err := cred.Load(ctx)
	if err != nil {
		return err
	}

	if found && cred.ClientID() != client.Username {
		return ErrClientMismatch
	}

	return nil
}

func (s *Server) resource(ctx context.Context, req *protocol.Request) (*Response, error) {
	grant, err := s.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Response{Status: http.StatusOK, Body: grant, Grant: &grant}, nil
}

// Validate resolves the request's access token to a grant. The token must
// belong to unexpired token credentials.
func (s *Server) Validate(ctx context.Context, req *protocol.Request) (domain.ResourceGrant, error) {
	if !req.Has(protocol.AccessToken) {
		return domain.ResourceGrant{}, ErrMissingToken
	}

	cred, err := s.newCredentials(req)
	if err != nil {
		return domain.ResourceGrant{}, err
	}

	if _, err := cred.Load(ctx); err != nil {
		return domain.ResourceGrant{}, err
	}

	if cred.State() != credentials.StateToken {
		return domain.ResourceGrant{}, ErrNotTokenCredentials
	}

	if cred.Record().Expired(s.clock.Now()) {
		return domain.ResourceGrant{}, credentials.ErrCredentialsNotFound
	}

	if err := cred.VerifySignature(ctx); err != nil {
		return domain.ResourceGrant{}, err
	}

	return domain.ResourceGrant{
		CredentialID:    cred.Record().ID,
		ResourceOwnerID: cred.ResourceOwnerID(),
		ClientID:        cred.ClientID(),
		ExpiresAt:       cred.ExpirationDate(),
	}, nil
}

// Deny rejects pending temporary credentials. The request carries the same
// client parameters and code as an authorise request.
func (s *Server) Deny(ctx context.Context, req *protocol.Request) (*Response, error) {
	req.Set(protocol.ResponseType, protocol.ResponseAuthorise)

	cred, client, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.load(ctx, cred, client); err != nil {
		return nil, err
	}

	if err := cred.VerifySignature(ctx); err != nil {
		return nil, err
	}

	if req.Has(protocol.Code) && req.Code() != cred.TemporaryToken() {
		return nil, ErrInvalidCode
	}

	if err := cred.Deny(ctx); err != nil {
		return nil, err
	}

	return stateResponse(false), nil
}

// Revoke deletes token credentials identified by access_token or
// refresh_token.
func (s *Server) Revoke(ctx context.Context, req *protocol.Request) (*Response, error) {
	if !req.Has(protocol.AccessToken) && !req.Has(protocol.RefreshToken) {
		return nil, ErrMissingToken
	}

	cred, client, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.load(ctx, cred, client); err != nil {
		return nil, err
	}

	if err := cred.VerifySignature(ctx); err != nil {
		return nil, err
	}

	if err := cred.Revoke(ctx); err != nil {
		return nil, err
	}

	return stateResponse(false), nil
}
