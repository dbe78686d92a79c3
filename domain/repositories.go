package domain

import "context"

// CredentialStore persists credential records. Implementations own the rows;
// callers only ever see copies.
type CredentialStore interface {
	// FindBySecretKey returns the most recently inserted record whose client
	// secret equals key.
	FindBySecretKey(ctx context.Context, key string) (CredentialRecord, error)
	// FindByAccessToken ignores records whose expiration date has passed.
	FindByAccessToken(ctx context.Context, token string) (CredentialRecord, error)
	// FindByRefreshToken ignores records whose expiration date has passed.
	FindByRefreshToken(ctx context.Context, token string) (CredentialRecord, error)

	// Insert assigns an id. It fails with ErrAlreadyPersisted when rec has one.
	Insert(ctx context.Context, rec CredentialRecord) (CredentialRecord, error)
	// Update fails with ErrNotPersisted when rec has no id and with
	// ErrConcurrentUpdate when rec.Version is not the stored version.
	Update(ctx context.Context, rec CredentialRecord) (CredentialRecord, error)
	Delete(ctx context.Context, rec CredentialRecord) error

	// Clean removes every record whose expiration date or temporary
	// expiration date lies more than CleanGrace in the past.
	Clean(ctx context.Context) (int64, error)
}

// UserRepository stores client and resource owner accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int64) error
}
