// Package credentials implements the credential lifecycle: the state machine,
// the facade that binds it to a store, and client authentication.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/protocol"
	"github.com/pilab-dev/shadow-oauth/signer"
)

// TransitionEvent describes an attempted transition.
type TransitionEvent struct {
	Op     Operation
	From   State
	To     State
	Record domain.CredentialRecord
	Err    error
}

// Observer is notified after every attempted transition.
type Observer interface {
	Transitioned(ctx context.Context, ev TransitionEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev TransitionEvent)

func (f ObserverFunc) Transitioned(ctx context.Context, ev TransitionEvent) { f(ctx, ev) }

// Credentials binds one protocol request to at most one credential record and
// its state. It is not safe for concurrent use; build one per request.
type Credentials struct {
	request  *protocol.Request
	store    domain.CredentialStore
	signer   signer.Signer
	clock    domain.Clock
	keys     KeyGenerator
	logger   log.Logger
	observer Observer

	state  State
	record domain.CredentialRecord
}

// Option configures Credentials.
type Option func(*Credentials)

func WithClock(clock domain.Clock) Option {
	return func(c *Credentials) { c.clock = clock }
}

func WithKeyGenerator(keys KeyGenerator) Option {
	return func(c *Credentials) { c.keys = keys }
}

func WithLogger(logger log.Logger) Option {
	return func(c *Credentials) { c.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(c *Credentials) { c.observer = observer }
}

// New creates the facade for req. The signer is chosen by the request's
// signature method.
func New(req *protocol.Request, store domain.CredentialStore, opts ...Option) (*Credentials, error) {
	s, err := signer.New(req.SignatureMethod())
	if err != nil {
		return nil, err
	}

	c := &Credentials{
		request: req,
		store:   store,
		signer:  s,
		clock:   domain.SystemClock,
		keys:    RandomKeys{},
		logger:  log.NewNopLogger(),
		state:   StateNew,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Load binds the credential the request refers to. Requests carrying a
// response_type but no token are looked up by the client's secret key; a miss
// leaves the facade in StateNew and returns false. Token lookups clean the
// store first and fail with ErrCredentialsNotFound on a miss.
func (c *Credentials) Load(ctx context.Context) (bool, error) {
	var (
		rec domain.CredentialRecord
		err error
	)

	req := c.request
	switch {
	case req.Has(protocol.ResponseType) && !req.Has(protocol.AccessToken) && !req.Has(protocol.RefreshToken):
		key, decodeErr := c.signer.SecretDecode(req.ClientSecret())
		if decodeErr != nil {
			return false, decodeErr
		}

		rec, err = c.store.FindBySecretKey(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			c.bind(StateNew, domain.CredentialRecord{})
			return false, nil
		}
	case req.Has(protocol.RefreshToken):
		if err = c.clean(ctx); err != nil {
			return false, err
		}
		rec, err = c.store.FindByRefreshToken(ctx, req.RefreshToken())
	case req.Has(protocol.AccessToken):
		if err = c.clean(ctx); err != nil {
			return false, err
		}
		rec, err = c.store.FindByAccessToken(ctx, req.AccessToken())
	default:
		return false, ErrCredentialsNotFound
	}

	if errors.Is(err, domain.ErrNotFound) {
		return false, ErrCredentialsNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load credentials: %w", err)
	}

	state, err := StateForType(rec.Type)
	if err != nil {
		return false, err
	}

	c.bind(state, rec)

	return true, nil
}

func (c *Credentials) clean(ctx context.Context) error {
	removed, err := c.store.Clean(ctx)
	if err != nil {
		return fmt.Errorf("clean credentials: %w", err)
	}

	if removed > 0 {
		c.logger.Debug(ctx, "Removed expired credentials", map[string]interface{}{"count": removed})
	}

	return nil
}

func (c *Credentials) bind(state State, rec domain.CredentialRecord) {
	c.state = state
	c.record = rec
}

// Initialise creates temporary credentials for clientID. The stored client
// secret is the secret key decoded from the request's client_secret.
func (c *Credentials) Initialise(ctx context.Context, clientID, callbackURL string, lifetime time.Duration) error {
	secret, err := c.signer.SecretDecode(c.request.ClientSecret())
	if err != nil {
		return err
	}

	return c.apply(ctx, Input{
		Op:           OpInitialise,
		ClientID:     clientID,
		ClientSecret: secret,
		ClientIP:     c.request.ClientIP,
		CallbackURL:  callbackURL,
		Lifetime:     lifetime,
	})
}

// Authorise binds the temporary credentials to a resource owner.
func (c *Credentials) Authorise(ctx context.Context, resourceOwnerID int64, lifetime time.Duration) error {
	return c.apply(ctx, Input{Op: OpAuthorise, ResourceOwnerID: resourceOwnerID, Lifetime: lifetime})
}

// Convert exchanges authorised credentials for an access/refresh token pair.
func (c *Credentials) Convert(ctx context.Context, lifetime time.Duration) error {
	return c.apply(ctx, Input{Op: OpConvert, Lifetime: lifetime})
}

// Refresh rotates the token pair of token credentials.
func (c *Credentials) Refresh(ctx context.Context, lifetime time.Duration) error {
	return c.apply(ctx, Input{Op: OpRefresh, Lifetime: lifetime})
}

// Deny rejects temporary credentials and removes them.
func (c *Credentials) Deny(ctx context.Context) error {
	return c.apply(ctx, Input{Op: OpDeny})
}

// Revoke removes token credentials so neither token resolves again.
func (c *Credentials) Revoke(ctx context.Context) error {
	return c.apply(ctx, Input{Op: OpRevoke})
}

// Allows reports whether op is legal in the current state.
func (c *Credentials) Allows(op Operation) bool {
	return Allowed(c.state, op)
}

func (c *Credentials) apply(ctx context.Context, in Input) error {
	from := c.state

	next, rec, err := Transition(c.state, c.record, in, Env{Clock: c.clock, Keys: c.keys})
	if err == nil {
		rec, err = c.persist(ctx, next, rec)
	}

	if c.observer != nil {
		to := next
		if err != nil {
			to = from
		}
		c.observer.Transitioned(ctx, TransitionEvent{Op: in.Op, From: from, To: to, Record: rec, Err: err})
	}

	if err != nil {
		return err
	}

	c.bind(next, rec)

	return nil
}

func (c *Credentials) persist(ctx context.Context, next State, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	switch {
	case next.Terminal():
		if err := c.store.Delete(ctx, rec); err != nil {
			return rec, fmt.Errorf("delete credentials: %w", err)
		}
		return rec, nil
	case rec.Persisted():
		updated, err := c.store.Update(ctx, rec)
		if err != nil {
			return rec, fmt.Errorf("update credentials: %w", err)
		}
		return updated, nil
	default:
		inserted, err := c.store.Insert(ctx, rec)
		if err != nil {
			return rec, fmt.Errorf("insert credentials: %w", err)
		}
		return inserted, nil
	}
}

// Allowed reports whether op is legal from state s, using the same rules as
// Transition.
func Allowed(s State, op Operation) bool {
	_, _, err := Transition(s, domain.CredentialRecord{}, Input{Op: op}, Env{
		Clock: domain.ClockFunc(func() time.Time { return time.Time{} }),
		Keys:  KeyFunc(func() (string, error) { return "", nil }),
	})
	return err == nil
}

func (c *Credentials) State() State { return c.state }
func (c *Credentials) Record() domain.CredentialRecord { return c.record }
func (c *Credentials) Signer() signer.Signer { return c.signer }
func (c *Credentials) ClientID() string { return c.record.ClientID }
func (c *Credentials) ClientSecret() string { return c.record.ClientSecret }
func (c *Credentials) CallbackURL() string { return c.record.CallbackURL }
func (c *Credentials) TemporaryToken() string { return c.record.TemporaryToken }
func (c *Credentials) AccessToken() string { return c.record.AccessToken }
func (c *Credentials) RefreshToken() string { return c.record.RefreshToken }
func (c *Credentials) ResourceOwnerID() int64 { return c.record.ResourceOwnerID }
func (c *Credentials) Type() domain.CredentialType { return c.record.Type }
func (c *Credentials) ExpirationDate() time.Time { return c.record.ExpirationDate }
func (c *Credentials) TemporaryExpirationDate() time.Time { return c.record.TemporaryExpirationDate }
