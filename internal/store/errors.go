package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates the compound
	// (digest, owner_id) uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)
