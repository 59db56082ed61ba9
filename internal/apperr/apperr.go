// Package apperr defines the error taxonomy shared by the HTTP surface and
// the admin CLI. Every request-level failure is classified into one kind so
// handlers can map it to an HTTP status and ordctl to an exit code.
package apperr

import (
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInputValidation — ill-formed extractor payload or bad request data.
	KindInputValidation
	// KindAuthorization — caller lacks the required role or capability.
	KindAuthorization
	// KindNotFound — referenced entity does not exist.
	KindNotFound
	// KindConflict — claim held by another operator, stale decision, duplicate.
	KindConflict
	// KindInvariantViolation — an illegal state transition was requested.
	KindInvariantViolation
	// KindInfrastructure — store unavailable, lock timeout; retryable.
	KindInfrastructure
)

var (
	ErrInputValidation    = eris.New("input validation failed")
	ErrAuthorization      = eris.New("not authorized")
	ErrNotFound           = eris.New("not found")
	ErrConflict           = eris.New("conflict")
	ErrInvariantViolation = eris.New("invariant violation")
	ErrInfrastructure     = eris.New("infrastructure fault")
)

// Validation wraps msg as an input validation failure.
func Validation(msg string) error {
	return eris.Wrap(ErrInputValidation, msg)
}

// Conflict wraps msg as a conflict failure.
func Conflict(msg string) error {
	return eris.Wrap(ErrConflict, msg)
}

// NotFound wraps msg as a missing-entity failure.
func NotFound(msg string) error {
	return eris.Wrap(ErrNotFound, msg)
}

// Invariant wraps msg as an invariant violation.
func Invariant(msg string) error {
	return eris.Wrap(ErrInvariantViolation, msg)
}

// Infrastructure wraps err as a retryable infrastructure fault.
func Infrastructure(err error, msg string) error {
	return eris.Wrap(errors.Join(ErrInfrastructure, err), msg)
}

// KindOf resolves the kind of an arbitrary error chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInputValidation):
		return KindInputValidation
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	case errors.Is(err, ErrInfrastructure):
		return KindInfrastructure
	default:
		return KindUnknown
	}
}

// HTTPStatus maps an error kind to the HTTP status returned by handlers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInputValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvariantViolation:
		return http.StatusUnprocessableEntity
	case KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps an error kind to the ordctl process exit code.
func ExitCode(err error) int {
	switch KindOf(err) {
	case KindUnknown:
		if err == nil {
			return 0
		}
		return 5
	case KindInputValidation, KindNotFound:
		return 2
	case KindAuthorization:
		return 3
	case KindConflict:
		return 4
	default:
		return 5
	}
}
