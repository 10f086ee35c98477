package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session manager and the authorization API
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrForbidden          = errors.New("forbidden")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Authorization API call errors
	ErrAuthCallFailure   = errors.New("authorization call failed")
	ErrMalformedResponse = fmt.Errorf("malformed response: %w", ErrAuthCallFailure)
	ErrTransport         = errors.New("transport error")

	// Session errors
	ErrMissingOriginalAdmin = errors.New("original admin credential missing")
	ErrNotImpersonating     = errors.New("not impersonating")
	ErrNoActiveIdentity     = errors.New("no active identity")
	ErrSessionBusy          = errors.New("session operation already in progress")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import
func New(text string) error {
	return errors.New(text)
}
