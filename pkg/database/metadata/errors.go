package metadata

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken
	ErrConflict = errors.New("already exists")
	// ErrInvalidState is returned when a row is not in the state an operation requires
	ErrInvalidState = errors.New("invalid state")
)
