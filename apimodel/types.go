// Package apimodel holds the wire types exchanged between the session manager and the authorization API.
package apimodel

import "github.com/jrsteele09/go-session-identity/users"

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /api/auth/register.
// RestaurantName is optional; when set the new user owns a freshly created restaurant.
type RegisterRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	RestaurantName string `json:"restaurant_name,omitempty"`
}

// TokenResponse is returned by login, register and refresh.
type TokenResponse struct {
	// Access is the JWT used as the bearer token for every authorised call.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Required: a response without it is malformed
	Access string `json:"access"`

	// Refresh is an opaque token used to obtain new access tokens.
	// Example: "9f86d081884c7d659a2feaa0c55ad015"
	// Optional: the session manager stores it but never refreshes proactively
	Refresh string `json:"refresh,omitempty"`

	// User is the identity the tokens were issued to.
	User *users.User `json:"user,omitempty"`
}

// RefreshRequest is the body of POST /api/auth/refresh.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// ImpersonateRequest is the body of POST /api/superadmin/impersonate.
type ImpersonateRequest struct {
	Email string `json:"email"`
}

// ImpersonateResponse is the success body of POST /api/superadmin/impersonate.
type ImpersonateResponse struct {
	// ImpersonatedUser is the identity now being acted as. Required.
	ImpersonatedUser *users.User `json:"impersonated_user"`

	// Access is the impersonation bearer token. Required.
	Access string `json:"access"`

	// Refresh is the impersonation refresh token. Optional.
	Refresh string `json:"refresh,omitempty"`

	// Message is a human readable confirmation shown while impersonating.
	Message string `json:"message,omitempty"`

	// RestaurantSimulation is tri-state: nil when the API does not know,
	// false when the user has no simulated restaurant, true when they do.
	RestaurantSimulation *bool `json:"restaurant_simulation,omitempty"`
}

// RestaurantResponse is returned by GET /api/restaurants/mine.
type RestaurantResponse struct {
	RestaurantID string `json:"restaurant_id"`
	Name         string `json:"name,omitempty"`
	Simulated    bool   `json:"simulated,omitempty"`
}

// LogoutRequest is the optional body of POST /api/auth/logout.
type LogoutRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}
