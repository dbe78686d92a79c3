package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// CredentialRepository is a domain.CredentialStore in a bbolt database.
// Records are keyed by big-endian id, so cursor order is insertion order.
type CredentialRepository struct {
	db    *bbolt.DB
	clock domain.Clock
}

var _ domain.CredentialStore = (*CredentialRepository)(nil)

// NewCredentialRepository expects a database returned by Open. A nil clock
// uses the system clock.
func NewCredentialRepository(db *bbolt.DB, clock domain.Clock) *CredentialRepository {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &CredentialRepository{db: db, clock: clock}
}

func (r *CredentialRepository) FindBySecretKey(_ context.Context, key string) (domain.CredentialRecord, error) {
	var found domain.CredentialRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(credentialsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec domain.CredentialRecord
			if err := decode(v, &rec); err != nil {
				return fmt.Errorf("decode credentials: %w", err)
			}
			if rec.ClientSecret == key {
				found = rec
				return nil
			}
		}
		return domain.ErrNotFound
	})

	return found, err
}

func (r *CredentialRepository) FindByAccessToken(_ context.Context, token string) (domain.CredentialRecord, error) {
	return r.findLive("access_token", token)
}

func (r *CredentialRepository) FindByRefreshToken(_ context.Context, token string) (domain.CredentialRecord, error) {
	return r.findLive("refresh_token", token)
}

func (r *CredentialRepository) findLive(column, token string) (domain.CredentialRecord, error) {
	var rec domain.CredentialRecord
	now := r.clock.Now()

	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(tokenIndexes[column]).Get([]byte(token))
		if id == nil {
			return domain.ErrNotFound
		}

		data := tx.Bucket(credentialsBucket).Get(id)
		if data == nil {
			return domain.ErrNotFound
		}
		if err := decode(data, &rec); err != nil {
			return fmt.Errorf("decode credentials: %w", err)
		}

		if !rec.ExpirationDate.After(now) {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.CredentialRecord{}, err
	}

	return rec, nil
}

func (r *CredentialRepository) Insert(_ context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if rec.Persisted() {
		return rec, domain.ErrAlreadyPersisted
	}

	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		next := rec
		next.ID = int64(seq)
		next.Version = 1

		if err := putIndexes(tx, next, domain.CredentialRecord{}); err != nil {
			return err
		}
		if err := putRecord(b, next); err != nil {
			return err
		}

		rec = next
		return nil
	})
	if err != nil {
		return domain.CredentialRecord{}, err
	}

	return rec, nil
}

func (r *CredentialRepository) Update(_ context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if !rec.Persisted() {
		return rec, domain.ErrNotPersisted
	}

	next := rec
	next.Version++

	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket)

		data := b.Get(itob(rec.ID))
		if data == nil {
			return domain.ErrNotFound
		}

		var current domain.CredentialRecord
		if err := decode(data, &current); err != nil {
			return fmt.Errorf("decode credentials: %w", err)
		}
		if current.Version != rec.Version {
			return domain.ErrConcurrentUpdate
		}

		if err := putIndexes(tx, next, current); err != nil {
			return err
		}
		return putRecord(b, next)
	})
	if err != nil {
		return rec, err
	}

	return next, nil
}

func (r *CredentialRepository) Delete(_ context.Context, rec domain.CredentialRecord) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket)

		data := b.Get(itob(rec.ID))
		if data == nil {
			return nil
		}

		var current domain.CredentialRecord
		if err := decode(data, &current); err != nil {
			return fmt.Errorf("decode credentials: %w", err)
		}

		return deleteRecord(tx, current)
	})
}

// Clean runs two sweeps in one transaction: stale expiration dates, then
// stale temporary expiration dates among the records left.
func (r *CredentialRepository) Clean(_ context.Context) (int64, error) {
	cutoff := r.clock.Now().Add(-domain.CleanGrace)

	var removed int64
	err := r.db.Update(func(tx *bbolt.Tx) error {
		for _, date := range []func(domain.CredentialRecord) time.Time{
			func(rec domain.CredentialRecord) time.Time { return rec.ExpirationDate },
			func(rec domain.CredentialRecord) time.Time { return rec.TemporaryExpirationDate },
		} {
			n, err := sweep(tx, func(rec domain.CredentialRecord) bool {
				return domain.StaleDate(date(rec), cutoff)
			})
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clean credentials: %w", err)
	}

	return removed, nil
}

func sweep(tx *bbolt.Tx, stale func(domain.CredentialRecord) bool) (int64, error) {
	var matched []domain.CredentialRecord

	err := tx.Bucket(credentialsBucket).ForEach(func(_, v []byte) error {
		var rec domain.CredentialRecord
		if err := decode(v, &rec); err != nil {
			return fmt.Errorf("decode credentials: %w", err)
		}
		if stale(rec) {
			matched = append(matched, rec)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Buckets must not be modified while ForEach iterates them.
	for _, rec := range matched {
		if err := deleteRecord(tx, rec); err != nil {
			return 0, err
		}
	}

	return int64(len(matched)), nil
}

func putRecord(b *bbolt.Bucket, rec domain.CredentialRecord) error {
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return b.Put(itob(rec.ID), data)
}

func deleteRecord(tx *bbolt.Tx, rec domain.CredentialRecord) error {
	for column, token := range tokens(rec) {
		if token == "" {
			continue
		}
		if err := tx.Bucket(tokenIndexes[column]).Delete([]byte(token)); err != nil {
			return err
		}
	}
	return tx.Bucket(credentialsBucket).Delete(itob(rec.ID))
}

// putIndexes points every non-empty token of next at its id, removing the
// entries of prev that changed. Tokens held by another record fail with
// ErrDuplicateKey before anything is written.
func putIndexes(tx *bbolt.Tx, next, prev domain.CredentialRecord) error {
	id := itob(next.ID)
	nextTokens, prevTokens := tokens(next), tokens(prev)

	for column, token := range nextTokens {
		if token == "" {
			continue
		}
		owner := tx.Bucket(tokenIndexes[column]).Get([]byte(token))
		if owner != nil && !bytes.Equal(owner, id) {
			return domain.ErrDuplicateKey
		}
	}

	for column, token := range prevTokens {
		if token == "" || token == nextTokens[column] {
			continue
		}
		if err := tx.Bucket(tokenIndexes[column]).Delete([]byte(token)); err != nil {
			return err
		}
	}

	for column, token := range nextTokens {
		if token == "" {
			continue
		}
		if err := tx.Bucket(tokenIndexes[column]).Put([]byte(token), id); err != nil {
			return err
		}
	}

	return nil
}

func tokens(rec domain.CredentialRecord) map[string]string {
	return map[string]string{
		"temporary_token": rec.TemporaryToken,
		"access_token":    rec.AccessToken,
		"refresh_token":   rec.RefreshToken,
	}
}
