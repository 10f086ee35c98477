package auth

import (
	"strings"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/users"
)

// Validator provides centralized validation of authorization API requests.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogin checks a login request is complete. Credential checks happen in the service.
func (v *Validator) ValidateLogin(req apimodel.LoginRequest) error {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "email and password are required")
	}
	return nil
}

// ValidateRegistration checks the email, password strength and name lengths of a new account
func (v *Validator) ValidateRegistration(req apimodel.RegisterRequest) error {
	if err := users.ValidateEmail(req.Email); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "%s", err.Error())
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "%s", err.Error())
	}
	for field, value := range map[string]string{
		"first_name":      req.FirstName,
		"last_name":       req.LastName,
		"restaurant_name": req.RestaurantName,
	} {
		if len(value) > 100 {
			return errors.Wrapf(errors.ErrInvalidRequest, "%s must be at most 100 characters", field)
		}
	}
	return nil
}

// ValidateImpersonationTarget enforces who may be impersonated by whom.
// A super admin cannot be impersonated, so impersonation never chains.
func (v *Validator) ValidateImpersonationTarget(admin, target *users.User) error {
	if admin == nil || !admin.IsSuperAdmin() {
		return errors.Wrapf(errors.ErrForbidden, "super admin role required")
	}
	if target == nil {
		return errors.ErrUserNotFound
	}
	if target.ID == admin.ID {
		return errors.Wrapf(errors.ErrForbidden, "cannot impersonate yourself")
	}
	if target.IsSuperAdmin() {
		return errors.Wrapf(errors.ErrForbidden, "cannot impersonate another super admin")
	}
	if target.Blocked {
		return errors.Wrapf(errors.ErrForbidden, "user %s is blocked", target.Email)
	}
	return nil
}
