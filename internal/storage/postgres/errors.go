package postgres

import "errors"

var (
	// ErrOptimisticLock is returned when a guarded update matched no row because
	// a concurrent writer got there first (e.g. linking an account's person twice).
	ErrOptimisticLock = errors.New("agency/postgres: optimistic locking conflict")
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("agency/postgres: resource not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("agency/postgres: duplicate key")
	// ErrReference is returned when a write names a row that does not exist.
	ErrReference = errors.New("agency/postgres: referenced row missing")
)
