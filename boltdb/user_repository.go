package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// UserRepository is a domain.UserRepository in a bbolt database.
type UserRepository struct {
	db *bbolt.DB
}

var _ domain.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *bbolt.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(usernameIndex)
		if idx.Get([]byte(user.Username)) != nil {
			return domain.ErrUserExists
		}

		b := tx.Bucket(usersBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		user.ID = int64(seq)

		data, err := encode(user)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		if err := b.Put(itob(user.ID), data); err != nil {
			return err
		}
		return idx.Put([]byte(user.Username), itob(user.ID))
	})
	if err != nil {
		return domain.User{}, err
	}

	return user, nil
}

func (r *UserRepository) GetUserByID(_ context.Context, id int64) (domain.User, error) {
	var user domain.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		return getUser(tx, itob(id), &user)
	})
	return user, err
}

func (r *UserRepository) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	var user domain.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(usernameIndex).Get([]byte(username))
		if id == nil {
			return domain.ErrNotFound
		}
		return getUser(tx, id, &user)
	})
	return user, err
}

func getUser(tx *bbolt.Tx, id []byte, user *domain.User) error {
	data := tx.Bucket(usersBucket).Get(id)
	if data == nil {
		return domain.ErrNotFound
	}
	if err := decode(data, user); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	return nil
}

func (r *UserRepository) ListUsers(_ context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(_, v []byte) error {
			var user domain.User
			if err := decode(v, &user); err != nil {
				return fmt.Errorf("decode user: %w", err)
			}
			users = append(users, user)
			return nil
		})
	})
	return users, err
}

func (r *UserRepository) DeleteUser(_ context.Context, id int64) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		var user domain.User
		if err := getUser(tx, itob(id), &user); err != nil {
			return err
		}
		if err := tx.Bucket(usernameIndex).Delete([]byte(user.Username)); err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Delete(itob(id))
	})
}
