package mediabrowser

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn is wrapped in an AuthError when a call needs a token that is not held
var ErrNotLoggedIn = errors.New("not logged in")

// StatusError is a non-2xx response from the media server
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// AuthError means the server rejected our credentials or token.
// Callers retry login after a delay; it is never fatal.
type AuthError struct {
	Server string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication with %s failed: %v", e.Server, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError covers network failures and unexpected responses
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LibraryResolutionError means an item's containing library could not be determined
type LibraryResolutionError struct {
	ID  string
	Err error
}

func (e *LibraryResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve library for %s: %v", e.ID, e.Err)
}

func (e *LibraryResolutionError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is or wraps an AuthError
func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsTransportError reports whether err is or wraps a TransportError
func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsLibraryResolutionError reports whether err is or wraps a LibraryResolutionError
func IsLibraryResolutionError(err error) bool {
	var target *LibraryResolutionError
	return errors.As(err, &target)
}

// statusCode extracts the HTTP status from a StatusError chain, or 0
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
