// Package apperr defines the error taxonomy shared by the store, the sync
// engine, the service layer and the HTTP API.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, apperr.ErrNotFound) {
//	    // respond 404
//	}
package apperr

import "errors"

var (
	// ErrNotFound is returned when an entity does not exist or is not
	// owned by the calling user. The two cases are indistinguishable on
	// purpose so that ownership never leaks.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input is malformed (empty title,
	// priority out of range, unknown task type). It is raised before any
	// remote or local call.
	ErrValidation = errors.New("validation failed")

	// ErrNoCredential is returned when an operation requires a Todoist
	// token but the user has none configured.
	ErrNoCredential = errors.New("todoist token not configured")

	// ErrInternal wraps failures of a whole-collection reconciliation.
	ErrInternal = errors.New("internal error")
)

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is, or wraps, ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUserError returns true if the error was caused by the caller and
// should be reported back verbatim rather than as an internal failure.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotFound) {
		return true
	}
	if errors.Is(err, ErrValidation) {
		return true
	}
	if errors.Is(err, ErrNoCredential) {
		return true
	}

	return false
}
