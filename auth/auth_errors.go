package auth

import "github.com/jrsteele09/go-session-identity/internal/errors"

var (
	UserNotFoundErr           = errors.ErrUserNotFound
	UserBlockedErr            = errors.Wrapf(errors.ErrForbidden, "user blocked")
	UserPasswordsDontMatchErr = errors.ErrInvalidCredentials
	UserExistsErr             = errors.ErrUserExists
)
