package command

import (
	"errors"
	"fmt"
)

var (
	ErrNoUser       = errors.New("no user id; pass --user or set USER_ID")
	ErrRelayFailure = errors.New("relay request failed")
	ErrPeerLeft     = errors.New("peer left the room")
)

// CommandError records which step of a command failed.
type CommandError struct {
	Op      string
	Err     error
	Details string
}

func (e *CommandError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CommandError {
	return &CommandError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *CommandError {
	return &CommandError{Op: op, Err: err, Details: details}
}
