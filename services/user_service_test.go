package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// --- Mock Implementations ---

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockUserRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockUserRepository) DeleteUser(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(hashedPassword, password string) error {
	args := m.Called(hashedPassword, password)
	return args.Error(0)
}

// --- Tests ---

func TestUserService_AuthenticateUser(t *testing.T) {
	ctx := context.Background()
	alice := domain.User{ID: 12, Username: "alice", PasswordHash: "hash"}

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepository)
		hasher := new(MockPasswordHasher)
		svc := NewUserService(repo, hasher)

		repo.On("GetUserByUsername", ctx, "alice").Return(alice, nil).Once()
		hasher.On("Verify", "hash", "pw").Return(nil).Once()

		id, err := svc.AuthenticateUser(ctx, "alice", "pw")
		require.NoError(t, err)
		assert.Equal(t, int64(12), id)

		repo.AssertExpectations(t)
		hasher.AssertExpectations(t)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		repo := new(MockUserRepository)
		hasher := new(MockPasswordHasher)
		svc := NewUserService(repo, hasher)

		repo.On("GetUserByUsername", ctx, "alice").Return(alice, nil).Once()
		hasher.On("Verify", "hash", "bad").Return(errors.New("mismatch")).Once()

		_, err := svc.AuthenticateUser(ctx, "alice", "bad")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		repo := new(MockUserRepository)
		hasher := new(MockPasswordHasher)
		svc := NewUserService(repo, hasher)

		repo.On("GetUserByUsername", ctx, "mallory").Return(domain.User{}, domain.ErrNotFound).Once()

		_, err := svc.AuthenticateUser(ctx, "mallory", "pw")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("RepositoryFailure", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := NewUserService(repo, new(MockPasswordHasher))

		dbErr := errors.New("connection reset")
		repo.On("GetUserByUsername", ctx, "alice").Return(domain.User{}, dbErr).Once()

		_, err := svc.AuthenticateUser(ctx, "alice", "pw")
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestUserService_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepository)
		hasher := new(MockPasswordHasher)
		svc := NewUserService(repo, hasher)

		hasher.On("Hash", "long-enough").Return("hashed", nil).Once()
		repo.On("CreateUser", ctx, mock.MatchedBy(func(u domain.User) bool {
			return u.Username == "bob" && u.PasswordHash == "hashed" && !u.CreatedAt.IsZero()
		})).Return(domain.User{ID: 3, Username: "bob", PasswordHash: "hashed"}, nil).Once()

		user, err := svc.CreateUser(ctx, " bob ", "long-enough")
		require.NoError(t, err)
		assert.Equal(t, int64(3), user.ID)

		repo.AssertExpectations(t)
		hasher.AssertExpectations(t)
	})

	t.Run("Validation", func(t *testing.T) {
		svc := NewUserService(new(MockUserRepository), new(MockPasswordHasher))

		_, err := svc.CreateUser(ctx, "a:b", "long-enough")
		assert.ErrorIs(t, err, ErrInvalidUsername)

		_, err = svc.CreateUser(ctx, "", "long-enough")
		assert.ErrorIs(t, err, ErrInvalidUsername)

		_, err = svc.CreateUser(ctx, "bob", "short")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})
}
