// Package session derives the tab's session state from the credential store
// and performs the transitions between states.
package session

import (
	"github.com/jrsteele09/go-session-identity/credentials"
	"github.com/jrsteele09/go-session-identity/users"
)

type State int

const (
	StateNormal        State = iota // Acting as the logged in user, or logged out
	StateImpersonating              // A super admin is acting as another user
	StateRestoring                  // Switching back to the super admin; only seen while a restore runs
)

func (s State) String() string {
	switch s {
	case StateImpersonating:
		return "impersonating"
	case StateRestoring:
		return "restoring"
	default:
		return "normal"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only view of the session. It is rebuilt from the store
// on every call and never written back.
type Snapshot struct {
	State                 State             `json:"state"`
	ActiveScope           credentials.Scope `json:"active_scope"`
	IsImpersonating       bool              `json:"is_impersonating"`
	User                  *users.User       `json:"user,omitempty"` // Owner of the main slot
	OriginalAdminEmail    string            `json:"original_admin_email,omitempty"`
	ImpersonatedUserEmail string            `json:"impersonated_user,omitempty"`
	ImpersonatedUserData  *users.User       `json:"impersonated_user_data,omitempty"`
	ImpersonationMessage  string            `json:"impersonation_message,omitempty"`
	RestaurantID          string            `json:"restaurant_id,omitempty"`
}

// LoggedIn reports whether any identity is active
func (s Snapshot) LoggedIn() bool {
	return s.ActiveScope != credentials.ScopeNone
}
