package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// UserStore is an in-memory domain.UserRepository.
type UserStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]domain.User
	byName map[string]int64
}

var _ domain.UserRepository = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{
		byID:   make(map[int64]domain.User),
		byName: make(map[string]int64),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[user.Username]; exists {
		return domain.User{}, domain.ErrUserExists
	}

	s.nextID++
	user.ID = s.nextID
	s.byID[user.ID] = user
	s.byName[user.Username] = user.ID

	return user, nil
}

func (s *UserStore) GetUserByID(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}

	return user, nil
}

func (s *UserStore) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}

	return s.byID[id], nil
}

func (s *UserStore) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users, nil
}

func (s *UserStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}

	delete(s.byID, id)
	delete(s.byName, user.Username)

	return nil
}
