package task

import "errors"

// Sentinel errors for task operations.
var (
	// ErrUnauthorized is returned when the caller's identity cannot be resolved.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when no task with the id is owned by the caller.
	ErrNotFound = errors.New("task not found")

	// ErrStoreUnavailable is returned when the persistence backend is unreachable or failed.
	ErrStoreUnavailable = errors.New("task store unavailable")

	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Kind is the closed set of failures surfaced to callers.
type Kind string

const (
	KindNone             Kind = ""
	KindUnauthorized     Kind = "unauthorized"
	KindValidationFailed Kind = "validation_failed"
	KindNotFound         Kind = "not_found"
	KindStoreUnavailable Kind = "store_unavailable"
)

// KindOf classifies err. Anything unrecognized is reported as a store failure
// so raw driver errors never leak to callers as their own kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidationFailed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindStoreUnavailable
	}
}
