package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped with
// fmt.Errorf("...: %w")) and services translate them into coded domain errors.
//
//   - ErrNotFound: no record under the derived key
//   - ErrAlreadyExists: a record already occupies the derived key
//   - ErrConflict: concurrent writer won; the caller's view is stale
//   - ErrInvalidState: record is in the wrong state for the operation
//   - ErrUnavailable: backing store or cache could not be reached
//
// Validation failures never use these; see pkg/domain-errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
