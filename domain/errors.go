package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyPersisted = errors.New("credential record already has an id")
	ErrNotPersisted     = errors.New("credential record has no id")
	ErrConcurrentUpdate = errors.New("credential record was modified concurrently")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrUserExists       = errors.New("user already exists")
)
