// Package apperror carries the error taxonomy shared by the ingestion
// pipeline, the read model store and the query surface. Projector anomalies
// are deliberately not part of it: they are logged, never returned.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind uint8

const (
	// KindValidation marks bad caller input. Never retried.
	KindValidation Kind = iota + 1
	// KindStorage marks a failed content store or read model store call.
	// Retryable by the caller with the same idempotent inputs.
	KindStorage
	// KindUnavailable marks a temporarily unreachable dependency.
	KindUnavailable
	// KindNotFound marks a query for a nonexistent record.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a kinded error that preserves its cause chain, so callers can
// branch on Kind while errors.Is/As still reach the root cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func Validation(msg string) error {
	return &Error{kind: KindValidation, msg: msg}
}

func Validationf(format string, args ...any) error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func Storage(msg string, err error) error {
	return &Error{kind: KindStorage, msg: msg, err: err}
}

func Unavailable(msg string, err error) error {
	return &Error{kind: KindUnavailable, msg: msg, err: err}
}

func NotFound(resource string, id any) error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf("%s %v not found", resource, id)}
}

// KindOf reports the kind of err, or 0 when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return 0
}

func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsStorage(err error) bool     { return KindOf(err) == KindStorage }
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }

// HTTPStatus maps an error to the status code the transport layer reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
