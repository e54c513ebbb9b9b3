// Package apperr classifies errors by kind so the HTTP layer can map them
// to a status code and a client-safe message.
package apperr

import (
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// Kind is the classification of an error for handling purposes.
type Kind int

const (
	// KindInternal is anything unclassified. Its message is never shown to clients.
	KindInternal Kind = iota
	KindInvalid
	KindUnauthenticated
	KindInvalidCredential
	KindForbidden
	KindNotFound
	KindConflict
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindInvalid:
		return fasthttp.StatusBadRequest
	case KindUnauthenticated:
		return fasthttp.StatusUnauthorized
	case KindInvalidCredential, KindForbidden:
		return fasthttp.StatusForbidden
	case KindNotFound:
		return fasthttp.StatusNotFound
	case KindConflict:
		return fasthttp.StatusConflict
	default:
		return fasthttp.StatusInternalServerError
	}
}

// Error is a classified error with a client-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error { return newf(KindInvalid, format, args...) }

func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, format, args...)
}

func InvalidCredential(format string, args ...any) *Error {
	return newf(KindInvalidCredential, format, args...)
}

func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Wrap annotates err as an internal failure. Classified errors pass through
// unchanged so their kind survives.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	return KindOf(err).Status()
}

// MessageOf returns the message safe to show a client.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return ae.Message
	}
	return "internal error"
}
