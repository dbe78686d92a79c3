// Package memstore keeps credentials and users in process memory. It backs
// tests and single-node development servers.
package memstore

import (
	"context"
	"sync"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// CredentialStore is a domain.CredentialStore over maps guarded by a mutex.
type CredentialStore struct {
	mu     sync.RWMutex
	clock  domain.Clock
	nextID int64
	rows   map[int64]domain.CredentialRecord
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates an empty store. A nil clock uses the system
// clock.
func NewCredentialStore(clock domain.Clock) *CredentialStore {
	if clock == nil {
		clock = domain.SystemClock
	}

	return &CredentialStore{
		clock: clock,
		rows:  make(map[int64]domain.CredentialRecord),
	}
}

func (s *CredentialStore) FindBySecretKey(_ context.Context, key string) (domain.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found domain.CredentialRecord
		ok    bool
	)
	for id, rec := range s.rows {
		if rec.ClientSecret == key && (!ok || id > found.ID) {
			found, ok = rec, true
		}
	}

	if !ok {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}

	return found, nil
}

func (s *CredentialStore) FindByAccessToken(_ context.Context, token string) (domain.CredentialRecord, error) {
	return s.findLive(func(rec domain.CredentialRecord) bool { return rec.AccessToken == token })
}

func (s *CredentialStore) FindByRefreshToken(_ context.Context, token string) (domain.CredentialRecord, error) {
	return s.findLive(func(rec domain.CredentialRecord) bool { return rec.RefreshToken == token })
}

func (s *CredentialStore) findLive(match func(domain.CredentialRecord) bool) (domain.CredentialRecord, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.rows {
		if match(rec) && rec.ExpirationDate.After(now) {
			return rec, nil
		}
	}

	return domain.CredentialRecord{}, domain.ErrNotFound
}

func (s *CredentialStore) Insert(_ context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if rec.Persisted() {
		return rec, domain.ErrAlreadyPersisted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflicts(rec) {
		return rec, domain.ErrDuplicateKey
	}

	s.nextID++
	rec.ID = s.nextID
	rec.Version = 1
	s.rows[rec.ID] = rec

	return rec, nil
}

func (s *CredentialStore) Update(_ context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if !rec.Persisted() {
		return rec, domain.ErrNotPersisted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rows[rec.ID]
	if !ok {
		return rec, domain.ErrNotFound
	}
	if current.Version != rec.Version {
		return rec, domain.ErrConcurrentUpdate
	}
	if s.conflicts(rec) {
		return rec, domain.ErrDuplicateKey
	}

	rec.Version++
	s.rows[rec.ID] = rec

	return rec, nil
}

// conflicts reports whether another row already holds one of rec's tokens.
// Callers hold the write lock.
func (s *CredentialStore) conflicts(rec domain.CredentialRecord) bool {
	for id, other := range s.rows {
		if id == rec.ID {
			continue
		}
		if sameToken(rec.TemporaryToken, other.TemporaryToken) ||
			sameToken(rec.AccessToken, other.AccessToken) ||
			sameToken(rec.RefreshToken, other.RefreshToken) {
			return true
		}
	}
	return false
}

func sameToken(a, b string) bool {
	return a != "" && a == b
}

func (s *CredentialStore) Delete(_ context.Context, rec domain.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, rec.ID)

	return nil
}

func (s *CredentialStore) Clean(_ context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-domain.CleanGrace)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	// Two sweeps, one per expiry column.
	for id, rec := range s.rows {
		if domain.StaleDate(rec.ExpirationDate, cutoff) {
			delete(s.rows, id)
			removed++
		}
	}
	for id, rec := range s.rows {
		if domain.StaleDate(rec.TemporaryExpirationDate, cutoff) {
			delete(s.rows, id)
			removed++
		}
	}

	return removed, nil
}

// Len returns the number of stored records.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
