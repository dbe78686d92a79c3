package credentials

import (
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// State is the lifecycle state bound to a credential record.
type State int

const (
	StateNew State = iota
	StateTemporary
	StateAuthorised
	StateToken
	StateDenied
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateTemporary:
		return "temporary"
	case StateAuthorised:
		return "authorised"
	case StateToken:
		return "token"
	case StateDenied:
		return "denied"
	case StateRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no operation is legal from s.
func (s State) Terminal() bool {
	return s == StateDenied || s == StateRevoked
}

// StateForType maps a persisted credential type onto its state.
func StateForType(t domain.CredentialType) (State, error) {
	switch t {
	case domain.CredentialTemporary:
		return StateTemporary, nil
	case domain.CredentialAuthorised:
		return StateAuthorised, nil
	case domain.CredentialToken:
		return StateToken, nil
	default:
		return StateNew, fmt.Errorf("%w: %d", ErrInvalidCredentialType, int(t))
	}
}

// DefaultLifetimeDuration is DefaultLifetime as a time.Duration.
const DefaultLifetimeDuration = 4 * time.Hour

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultLifetimeDuration
	}
	return d
}

// Operation is a lifecycle transition request.
type Operation int

const (
	OpInitialise Operation = iota + 1
	OpAuthorise
	OpConvert
	OpDeny
	OpRevoke
	OpRefresh
)

func (o Operation) String() string {
	switch o {
	case OpInitialise:
		return "initialise"
	case OpAuthorise:
		return "authorise"
	case OpConvert:
		return "convert"
	case OpDeny:
		return "deny"
	case OpRevoke:
		return "revoke"
	case OpRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Input carries the arguments of a transition. Only the fields relevant to
// Op are read.
type Input struct {
	Op Operation

	ClientID     string
	ClientSecret string
	ClientIP     string
	CallbackURL  string

	ResourceOwnerID int64

	// Lifetime of the resulting credential. For authorise, zero or less
	// means the authorisation never expires; the other transitions fall back
	// to DefaultLifetimeDuration.
	Lifetime time.Duration
}

// Env supplies the side inputs of a transition.
type Env struct {
	Clock domain.Clock
	Keys  KeyGenerator
}

func (e Env) now() time.Time {
	if e.Clock == nil {
		return domain.SystemClock.Now()
	}
	return e.Clock.Now()
}

func (e Env) key() (string, error) {
	if e.Keys == nil {
		return RandomKeys{}.NewKey()
	}
	return e.Keys.NewKey()
}

// Transition applies in to rec in state s and returns the next state and the
// record to persist. It never touches a store. On error the returned state
// and record are the inputs, unchanged.
func Transition(s State, rec domain.CredentialRecord, in Input, env Env) (State, domain.CredentialRecord, error) {
	switch s {
	case StateNew:
		if in.Op == OpInitialise {
			return initialise(s, rec, in, env)
		}
	case StateTemporary:
		switch in.Op {
		case OpAuthorise:
			return authorise(s, rec, in, env)
		case OpDeny:
			return StateDenied, rec, nil
		}
	case StateAuthorised:
		if in.Op == OpConvert {
			return convert(s, rec, in, env)
		}
	case StateToken:
		switch in.Op {
		case OpRevoke:
			return StateRevoked, rec, nil
		case OpRefresh:
			return refresh(s, rec, in, env)
		}
	case StateDenied, StateRevoked:
	}

	return s, rec, invalidTransition(s, in.Op)
}

func invalidTransition(s State, op Operation) error {
	return fmt.Errorf("%w: cannot %s %s credentials", ErrInvalidTransition, op, s)
}

func initialise(s State, rec domain.CredentialRecord, in Input, env Env) (State, domain.CredentialRecord, error) {
	token, err := env.key()
	if err != nil {
		return s, rec, err
	}

	now := env.now()
	next := domain.CredentialRecord{
		ClientID:       in.ClientID,
		ClientSecret:   in.ClientSecret,
		ClientIP:       in.ClientIP,
		CallbackURL:    in.CallbackURL,
		TemporaryToken: token,
		Type:           domain.CredentialTemporary,
	}

	next.ExpirationDate = now.Add(orDefault(in.Lifetime))
	next.TemporaryExpirationDate = next.ExpirationDate

	return StateTemporary, next, nil
}

func authorise(s State, rec domain.CredentialRecord, in Input, env Env) (State, domain.CredentialRecord, error) {
	token, err := env.key()
	if err != nil {
		return s, rec, err
	}

	now := env.now()
	next := rec
	next.ResourceOwnerID = in.ResourceOwnerID
	next.TemporaryToken = token
	next.Type = domain.CredentialAuthorised
	next.ExpirationDate = time.Time{}

	if in.Lifetime > 0 {
		next.ExpirationDate = now.Add(in.Lifetime)
	}

	return StateAuthorised, next, nil
}

func convert(s State, rec domain.CredentialRecord, in Input, env Env) (State, domain.CredentialRecord, error) {
	access, refresh, err := tokenPair(env)
	if err != nil {
		return s, rec, err
	}

	now := env.now()
	next := rec
	next.CallbackURL = ""
	next.AccessToken = access
	next.RefreshToken = refresh
	next.Type = domain.CredentialToken
	next.ExpirationDate = now.Add(orDefault(in.Lifetime))
	next.TemporaryExpirationDate = time.Time{}

	return StateToken, next, nil
}

func refresh(s State, rec domain.CredentialRecord, in Input, env Env) (State, domain.CredentialRecord, error) {
	access, refresh, err := tokenPair(env)
	if err != nil {
		return s, rec, err
	}

	now := env.now()
	next := rec
	next.AccessToken = access
	next.RefreshToken = refresh
	next.ExpirationDate = now.Add(orDefault(in.Lifetime))

	return StateToken, next, nil
}

func tokenPair(env Env) (string, string, error) {
	access, err := env.key()
	if err != nil {
		return "", "", err
	}

	refresh, err := env.key()
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}
