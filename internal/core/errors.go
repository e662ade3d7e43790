package core

import (
	"errors"
	"fmt"
)

// Error kinds. Engine operations return *Error values that unwrap to one of
// these, so callers branch with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrStateConflict  = errors.New("state conflict")
	ErrQuotaExhausted = errors.New("emergency unblock quota exhausted")
	ErrPersistence    = errors.New("persistence error")
)

// Error is the outcome of a rejected engine operation. The state machine is
// left in State, its last valid state.
type Error struct {
	Kind    error
	Op      string
	Message string
	State   State
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes both the kind and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, op string, state State, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, State: state, Err: cause}
}

// KindOf returns the error kind of err, or nil when err is not an engine error
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrStateConflict, ErrQuotaExhausted, ErrPersistence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
