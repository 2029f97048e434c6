package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// AuthExpired represents a portal session that the remote rejected. Once a
// session is rejected, every subsequent request in the pass would fail the
// same way, so callers abort the current pass rather than retry.
type AuthExpired struct{}

func (err AuthExpired) Error() string {
	return "portal session expired or not logged in"
}

// IsAuthExpired reports whether the root cause of err is a rejected session.
func IsAuthExpired(err error) bool {
	_, ok := RootCause(err).(AuthExpired)
	return ok
}
