package apimodel

import (
	"strings"

	"github.com/jrsteele09/go-session-identity/internal/errors"
)

// Validate reports a structurally unusable token response.
func (t *TokenResponse) Validate() error {
	if t == nil || strings.TrimSpace(t.Access) == "" {
		return errors.Wrapf(errors.ErrMalformedResponse, "missing access token")
	}
	return nil
}

// Validate reports a structurally unusable impersonation response.
// Both the access token and the impersonated user are required.
func (r *ImpersonateResponse) Validate() error {
	if r == nil {
		return errors.Wrapf(errors.ErrMalformedResponse, "empty body")
	}
	if strings.TrimSpace(r.Access) == "" {
		return errors.Wrapf(errors.ErrMalformedResponse, "missing access")
	}
	if r.ImpersonatedUser == nil || strings.TrimSpace(r.ImpersonatedUser.Email) == "" {
		return errors.Wrapf(errors.ErrMalformedResponse, "missing impersonated_user")
	}
	return nil
}
