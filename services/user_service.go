package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("username must be non-empty and must not contain ':'")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

// MinPasswordLength applies to new accounts.
const MinPasswordLength = 8

// UserService manages the accounts clients and resource owners sign in with.
type UserService struct {
	userRepo       domain.UserRepository
	passwordHasher PasswordHasher
	now            func() time.Time
}

func NewUserService(userRepo domain.UserRepository, hasher PasswordHasher) *UserService {
	return &UserService{
		userRepo:       userRepo,
		passwordHasher: hasher,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// AuthenticateUser checks username and password and returns the user id.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (int64, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.passwordHasher.Verify(user.PasswordHash, password); err != nil {
		return 0, ErrInvalidCredentials
	}

	return user.ID, nil
}

// GetClient loads the account a client authenticates as.
func (s *UserService) GetClient(ctx context.Context, username string) (domain.User, error) {
	return s.userRepo.GetUserByUsername(ctx, username)
}

func (s *UserService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return s.userRepo.GetUserByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.userRepo.ListUsers(ctx)
}

func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	return s.userRepo.DeleteUser(ctx, id)
}

// Verify checks a password against a stored hash with the service's hasher.
func (s *UserService) Verify(hashedPassword, password string) error {
	return s.passwordHasher.Verify(hashedPassword, password)
}

// CreateUser registers a new account. Usernames end up inside the
// colon-delimited client_id encoding and therefore may not contain ':'.
func (s *UserService) CreateUser(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.Contains(username, ":") {
		return domain.User{}, ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return domain.User{}, ErrPasswordTooShort
	}

	hash, err := s.passwordHasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.userRepo.CreateUser(ctx, domain.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
}
