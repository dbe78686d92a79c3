package domain

import (
	"fmt"
	"time"
)

// CredentialType is the persisted lifecycle stage of a credential record.
type CredentialType int

const (
	CredentialTemporary  CredentialType = 0
	CredentialAuthorised CredentialType = 1
	CredentialToken      CredentialType = 2
)

func (t CredentialType) String() string {
	switch t {
	case CredentialTemporary:
		return "temporary"
	case CredentialAuthorised:
		return "authorised"
	case CredentialToken:
		return "token"
	default:
		return fmt.Sprintf("credential_type(%d)", int(t))
	}
}

// Valid reports whether t is one of the persisted stages.
func (t CredentialType) Valid() bool {
	return t >= CredentialTemporary && t <= CredentialToken
}

// CredentialRecord is a single row of the credentials table. It is passed by
// value; stores return copies and never alias caller memory.
type CredentialRecord struct {
	ID              int64  `bson:"_id"               json:"credentials_id"    db:"credentials_id"`
	ClientID        string `bson:"client_id"         json:"client_id"         db:"client_id"`
	ClientSecret    string `bson:"client_secret"     json:"client_secret"     db:"client_secret"`
	ClientIP        string `bson:"client_ip"         json:"client_ip"         db:"client_ip"`
	CallbackURL     string `bson:"callback_url"      json:"callback_url"      db:"callback_url"`
	TemporaryToken  string `bson:"temporary_token"   json:"temporary_token"   db:"temporary_token"`
	AccessToken     string `bson:"access_token"      json:"access_token"      db:"access_token"`
	RefreshToken    string `bson:"refresh_token"     json:"refresh_token"     db:"refresh_token"`
	ResourceOwnerID int64  `bson:"resource_owner_id" json:"resource_owner_id" db:"resource_owner_id"`

	Type CredentialType `bson:"type" json:"type" db:"type"`

	// Zero time means "no expiry" for both dates.
	ExpirationDate          time.Time `bson:"expiration_date"           json:"expiration_date"           db:"expiration_date"`
	TemporaryExpirationDate time.Time `bson:"temporary_expiration_date" json:"temporary_expiration_date" db:"temporary_expiration_date"`

	// Version is bumped by every successful Update.
	Version int64 `bson:"version" json:"version" db:"version"`
}

// Persisted reports whether the record has been inserted.
func (r CredentialRecord) Persisted() bool {
	return r.ID != 0
}

// Expired reports whether the general expiry has passed at now. Records
// without an expiration date never expire.
func (r CredentialRecord) Expired(now time.Time) bool {
	return !r.ExpirationDate.IsZero() && !r.ExpirationDate.After(now)
}

// CleanGrace is how long an expired record stays in the store before Clean
// removes it.
const CleanGrace = time.Hour

// Stale reports whether Clean should remove the record at now: either expiry
// date is set and lies more than CleanGrace in the past.
func (r CredentialRecord) Stale(now time.Time) bool {
	cutoff := now.Add(-CleanGrace)

	return StaleDate(r.ExpirationDate, cutoff) || StaleDate(r.TemporaryExpirationDate, cutoff)
}

// StaleDate reports whether a non-zero date is strictly before cutoff.
func StaleDate(date, cutoff time.Time) bool {
	return !date.IsZero() && date.Before(cutoff)
}
