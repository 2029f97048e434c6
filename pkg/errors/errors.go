package errors

import (
	"fmt"
)

// ContextError annotates an error with what the caller was doing when the
// error occurred. Contexts stack, so a deeply nested failure reads like
// "sync course: walk tree: list folder: connection refused".
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

// WithContext wraps err with a short description of the operation that
// failed.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// New creates a new error. The arguments are handled in the same manner as
// fmt.Sprintf.
func New(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// RootCause strips all context annotations from err and returns the
// underlying error. It's used to decide how to handle an error based on its
// type.
func RootCause(err error) error {
	for {
		ce, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ce.Err
	}
}

// FriendlyError is an error whose message is meant to be shown to the user
// directly, without any of the context annotations that wrap it.
type FriendlyError struct {
	Message string
}

// NewFriendlyError creates a new FriendlyError. The arguments are handled in
// the same manner as fmt.Sprintf.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage returns the message that should be shown to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

type friendlier interface {
	FriendlyMessage() string
}

// GetPrintableMessage returns the message that should be printed to the user
// for the given error. If any error in the chain provides a friendly
// message, that message is used. Otherwise, the full error string is
// returned.
func GetPrintableMessage(err error) string {
	for unwrapped := err; unwrapped != nil; {
		if friendly, ok := unwrapped.(friendlier); ok {
			return friendly.FriendlyMessage()
		}

		ce, ok := unwrapped.(ContextError)
		if !ok {
			break
		}
		unwrapped = ce.Err
	}
	return err.Error()
}
