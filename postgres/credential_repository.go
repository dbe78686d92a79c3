package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// CredentialRepository is a domain.CredentialStore on the oauth_credentials
// table.
type CredentialRepository struct {
	db    *sql.DB
	clock domain.Clock
}

var _ domain.CredentialStore = (*CredentialRepository)(nil)

// NewCredentialRepository expects the schema to exist. A nil clock uses the
// system clock.
func NewCredentialRepository(db *sql.DB, clock domain.Clock) *CredentialRepository {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &CredentialRepository{db: db, clock: clock}
}

const credentialColumns = `credentials_id, client_id, client_secret, client_ip, callback_url,
	temporary_token, access_token, refresh_token, resource_owner_id, type,
	expiration_date, temporary_expiration_date, version`

func (r *CredentialRepository) FindBySecretKey(ctx context.Context, key string) (domain.CredentialRecord, error) {
	return r.queryOne(ctx, `SELECT `+credentialColumns+` FROM oauth_credentials
		WHERE client_secret = $1 ORDER BY credentials_id DESC LIMIT 1`, key)
}

func (r *CredentialRepository) FindByAccessToken(ctx context.Context, token string) (domain.CredentialRecord, error) {
	return r.queryOne(ctx, `SELECT `+credentialColumns+` FROM oauth_credentials
		WHERE access_token = $1 AND expiration_date > $2`, token, r.clock.Now().UTC())
}

func (r *CredentialRepository) FindByRefreshToken(ctx context.Context, token string) (domain.CredentialRecord, error) {
	return r.queryOne(ctx, `SELECT `+credentialColumns+` FROM oauth_credentials
		WHERE refresh_token = $1 AND expiration_date > $2`, token, r.clock.Now().UTC())
}

func (r *CredentialRepository) queryOne(ctx context.Context, query string, args ...interface{}) (domain.CredentialRecord, error) {
	var (
		rec           domain.CredentialRecord
		exp, tempExp  sql.NullTime
		kind          int16
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.ID, &rec.ClientID, &rec.ClientSecret, &rec.ClientIP, &rec.CallbackURL,
		&rec.TemporaryToken, &rec.AccessToken, &rec.RefreshToken, &rec.ResourceOwnerID, &kind,
		&exp, &tempExp, &rec.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("find credentials: %w", err)
	}

	rec.Type = domain.CredentialType(kind)
	rec.ExpirationDate = fromNullTime(exp)
	rec.TemporaryExpirationDate = fromNullTime(tempExp)

	return rec, nil
}

func (r *CredentialRepository) Insert(ctx context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if rec.Persisted() {
		return rec, domain.ErrAlreadyPersisted
	}

	rec.Version = 1

	err := r.db.QueryRowContext(ctx, `INSERT INTO oauth_credentials
		(client_id, client_secret, client_ip, callback_url, temporary_token, access_token,
		 refresh_token, resource_owner_id, type, expiration_date, temporary_expiration_date, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING credentials_id`,
		rec.ClientID, rec.ClientSecret, rec.ClientIP, rec.CallbackURL, rec.TemporaryToken, rec.AccessToken,
		rec.RefreshToken, rec.ResourceOwnerID, int16(rec.Type),
		nullTime(rec.ExpirationDate), nullTime(rec.TemporaryExpirationDate), rec.Version,
	).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CredentialRecord{}, domain.ErrDuplicateKey
		}
		return domain.CredentialRecord{}, fmt.Errorf("insert credentials: %w", err)
	}

	return rec, nil
}

func (r *CredentialRepository) Update(ctx context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if !rec.Persisted() {
		return rec, domain.ErrNotPersisted
	}

	res, err := r.db.ExecContext(ctx, `UPDATE oauth_credentials SET
		client_id = $1, client_secret = $2, client_ip = $3, callback_url = $4,
		temporary_token = $5, access_token = $6, refresh_token = $7, resource_owner_id = $8,
		type = $9, expiration_date = $10, temporary_expiration_date = $11, version = version + 1
		WHERE credentials_id = $12 AND version = $13`,
		rec.ClientID, rec.ClientSecret, rec.ClientIP, rec.CallbackURL,
		rec.TemporaryToken, rec.AccessToken, rec.RefreshToken, rec.ResourceOwnerID,
		int16(rec.Type), nullTime(rec.ExpirationDate), nullTime(rec.TemporaryExpirationDate),
		rec.ID, rec.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rec, domain.ErrDuplicateKey
		}
		return rec, fmt.Errorf("update credentials: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return rec, fmt.Errorf("update credentials: %w", err)
	}

	if n == 0 {
		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM oauth_credentials WHERE credentials_id = $1)`, rec.ID,
		).Scan(&exists)
		if err != nil {
			return rec, fmt.Errorf("update credentials: %w", err)
		}
		if !exists {
			return rec, domain.ErrNotFound
		}
		return rec, domain.ErrConcurrentUpdate
	}

	rec.Version++

	return rec, nil
}

func (r *CredentialRepository) Delete(ctx context.Context, rec domain.CredentialRecord) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM oauth_credentials WHERE credentials_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// Clean runs one DELETE per expiry column. NULL dates never match.
func (r *CredentialRepository) Clean(ctx context.Context) (int64, error) {
	cutoff := r.clock.Now().Add(-domain.CleanGrace).UTC()

	var removed int64
	for _, query := range []string{
		`DELETE FROM oauth_credentials WHERE expiration_date < $1`,
		`DELETE FROM oauth_credentials WHERE temporary_expiration_date < $1`,
	} {
		res, err := r.db.ExecContext(ctx, query, cutoff)
		if err != nil {
			return removed, fmt.Errorf("clean credentials: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("clean credentials: %w", err)
		}
		removed += n
	}

	return removed, nil
}
