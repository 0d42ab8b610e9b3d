package domain

import (
	"github.com/pkg/errors"
)

// Error kinds. Match with errors.Is.
var (
	ErrNetwork           = errors.New("network error")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrTimeout           = errors.New("timeout")
	ErrAuthentication    = errors.New("authentication error")
	ErrValidation        = errors.New("validation error")
	ErrCircuitOpen       = errors.New("circuit open")
	ErrNotImplemented    = errors.New("not implemented")
)

// Error attaches a kind from the taxonomy to an underlying cause.
type Error struct {
	Kind error
	Err  error
}

// NewError classifies cause as kind. A nil cause yields the bare kind.
func NewError(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &Error{Kind: kind, Err: cause}
}

// Errorf classifies a formatted message as kind.
func Errorf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimitExceeded)
}

// KindOf returns the taxonomy kind of err or nil when err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNetwork, ErrRateLimitExceeded, ErrTimeout, ErrAuthentication,
		ErrValidation, ErrCircuitOpen, ErrNotImplemented,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
