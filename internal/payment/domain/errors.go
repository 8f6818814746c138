package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure classes the payment core reports.
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindAuthentication
	KindValidation
	KindDuplicate
	KindNotFound
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error carries a kind, a terse caller-safe message and the underlying cause.
// The message never contains secret material; the cause is for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind and message, so a wrapped sentinel
// still satisfies errors.Is against the bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Wrap attaches cause to a copy of sentinel.
func Wrap(sentinel *Error, cause error) error {
	if sentinel == nil {
		return cause
	}
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return 0, false
}

// MessageOf returns the caller-safe message of the first *Error in err's chain.
func MessageOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Message
	}
	return ""
}

var (
	ErrSecretNotConfigured = NewError(KindConfiguration, "signing secret not configured")
	ErrMissingSignature    = NewError(KindValidation, "missing signature")
	ErrInvalidSignature    = NewError(KindAuthentication, "invalid signature")
	ErrInvalidPayload      = NewError(KindValidation, "invalid payload")
	ErrInvalidEvent        = NewError(KindValidation, "invalid event")
	ErrMissingFields       = NewError(KindValidation, "missing required fields")
	ErrPayloadTooLarge     = NewError(KindValidation, "payload too large")
	ErrDuplicateEvent      = NewError(KindDuplicate, "event already received")
	ErrProviderNotFound    = NewError(KindNotFound, "provider not found")
	ErrOrderNotFound       = NewError(KindNotFound, "order not found")
	ErrEventNotFound       = NewError(KindNotFound, "event not found")
	ErrStorageUnavailable  = NewError(KindStorage, "storage unavailable")
)
