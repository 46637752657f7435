// Package apperror classifies failures of the account flows so the HTTP layer
// can pick a status code without knowing where an error came from.
package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindAccountState
	KindNotFound
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindAccountState:
		return "account_state"
	case KindNotFound:
		return "not_found"
	case KindDelivery:
		return "delivery"
	default:
		return "internal"
	}
}

// Error carries a caller-safe Message. Err holds the cause for operators and is
// never rendered into a response.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Err     error

	status int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a status code unless the error overrides it.
func (e *Error) HTTPStatus() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindAccountState:
		return http.StatusLocked
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WithStatus overrides the default status for this kind.
func (e *Error) WithStatus(status int) *Error {
	e.status = status
	return e
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func Authentication(msg string) *Error { return New(KindAuthentication, msg) }

func Authorization(msg string) *Error { return New(KindAuthorization, msg) }

func AccountState(msg string) *Error { return New(KindAccountState, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Delivery(err error) *Error {
	return Wrap(err, KindDelivery, "There was an error sending the email. Try again later!")
}

func Internal(err error) *Error { return Wrap(err, KindInternal, "Something went wrong") }

// InvalidToken is an authentication failure on a recovery endpoint, answered with 400.
func InvalidToken() *Error {
	return Authentication("Token is invalid or has expired").WithStatus(http.StatusBadRequest)
}

// KindOf reports the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// From returns err as *Error, wrapping unclassified errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
