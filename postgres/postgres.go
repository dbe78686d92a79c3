// Package postgres stores credentials and users in PostgreSQL through
// lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS oauth_credentials (
	credentials_id            BIGSERIAL PRIMARY KEY,
	client_id                 TEXT        NOT NULL DEFAULT '',
	client_secret             TEXT        NOT NULL DEFAULT '',
	client_ip                 TEXT        NOT NULL DEFAULT '',
	callback_url              TEXT        NOT NULL DEFAULT '',
	temporary_token           TEXT        NOT NULL DEFAULT '',
	access_token              TEXT        NOT NULL DEFAULT '',
	refresh_token             TEXT        NOT NULL DEFAULT '',
	resource_owner_id         BIGINT      NOT NULL DEFAULT 0,
	type                      SMALLINT    NOT NULL DEFAULT 0,
	expiration_date           TIMESTAMPTZ NULL,
	temporary_expiration_date TIMESTAMPTZ NULL,
	version                   BIGINT      NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS oauth_credentials_client_secret_idx
	ON oauth_credentials (client_secret, credentials_id DESC);
CREATE UNIQUE INDEX IF NOT EXISTS oauth_credentials_temporary_token_key
	ON oauth_credentials (temporary_token) WHERE temporary_token <> '';
CREATE UNIQUE INDEX IF NOT EXISTS oauth_credentials_access_token_key
	ON oauth_credentials (access_token) WHERE access_token <> '';
CREATE UNIQUE INDEX IF NOT EXISTS oauth_credentials_refresh_token_key
	ON oauth_credentials (refresh_token) WHERE refresh_token <> '';

CREATE TABLE IF NOT EXISTS oauth_users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT        NOT NULL UNIQUE,
	password_hash TEXT        NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Open connects to dsn and creates the schema when missing.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Msg("PostgreSQL connection initialized successfully.")

	return db, nil
}

// Migrate creates the tables and indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
