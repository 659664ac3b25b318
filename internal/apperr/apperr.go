// Package apperr defines the failure kinds surfaced by the booking, geo and rating services.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindIllegalTransition Kind = "illegal_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindConflict          Kind = "conflict"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }

func IllegalTransition(format string, args ...any) error {
	return newf(KindIllegalTransition, format, args...)
}

func Unauthorized(format string, args ...any) error { return newf(KindUnauthorized, format, args...) }

func Conflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

// Unauthenticated means the caller presented no usable identity, as opposed to Unauthorized.
func Unauthenticated(format string, args ...any) error {
	return newf(KindUnauthenticated, format, args...)
}

// Internal wraps an infrastructure failure so it keeps its cause.
func Internal(err error, msg string) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf reports the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }
