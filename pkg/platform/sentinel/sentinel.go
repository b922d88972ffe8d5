package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: row or record does not exist
//   - ErrConflict: a compare-and-swap lost against a concurrent writer
//   - ErrAlreadyExists: an insert hit a uniqueness guard
//   - ErrInvalidState: entity in wrong state for the requested write
//   - ErrUnavailable: backing store could not be reached in time
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
