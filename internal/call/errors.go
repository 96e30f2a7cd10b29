package call

import (
	"errors"
	"fmt"
)

var (
	ErrPeerLeft          = errors.New("peer left the call")
	ErrSignalingError    = errors.New("signaling relay error")
	ErrTimeout           = errors.New("timeout")
	ErrMediaAccess       = errors.New("local media unavailable")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrUnexpectedSignal  = errors.New("unexpected signal type")
	ErrAlreadyNegotiated = errors.New("session already negotiated")
)

// Error records the operation that failed and why.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
