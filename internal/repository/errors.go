package repository

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a record with the same key is already stored.
	ErrAlreadyExists = errors.New("already exists")
)
