package session

import (
	"errors"
	"fmt"
)

var (
	ErrSignalingError = errors.New("signaling server error")
	ErrTimeout        = errors.New("timeout")
	ErrDisconnected   = errors.New("disconnected from signaling server")
	ErrNoMedia        = errors.New("no local media")
	ErrLeft           = errors.New("session already left")
)

type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
