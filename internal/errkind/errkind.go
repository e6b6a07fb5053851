// Package errkind classifies errors by how callers should react to them.
// Transient external failures are retried, permanent ones surface
// immediately, and invalid input or logic errors never retry.
package errkind

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an error.
type Kind string

const (
	// KindInputInvalid marks caller mistakes: bad parameters, unsupported
	// formats, malformed payloads.
	KindInputInvalid Kind = "input_invalid"

	// KindExternalTransient marks dependency failures worth retrying:
	// timeouts, connection drops, rate limits, 5xx responses.
	KindExternalTransient Kind = "external_transient"

	// KindExternalPermanent marks dependency failures retries cannot fix:
	// authentication, quota exhaustion, unprocessable requests.
	KindExternalPermanent Kind = "external_permanent"

	// KindLogic marks internal invariant violations.
	KindLogic Kind = "logic"

	// KindCapacity marks rejected work: full queues, exhausted pools.
	KindCapacity Kind = "capacity"
)

// Error pairs an underlying error with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. A nil err returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err, or KindLogic for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindLogic
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether the operation behind err is worth retrying.
func Retryable(err error) bool {
	return Is(err, KindExternalTransient)
}

// FromStatusCode classifies an HTTP response failure. Rate limiting and
// server errors are transient; other client errors are permanent.
func FromStatusCode(status int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case status == http.StatusTooManyRequests:
		return New(KindExternalTransient, err)
	case status >= 500:
		return New(KindExternalTransient, err)
	case status >= 400:
		return New(KindExternalPermanent, err)
	}
	return New(KindExternalTransient, err)
}
