// Package credentials persists credential records in two lifetimes: tab-scoped
// storage that dies with the tab and cross-tab storage shared by every tab.
package credentials

import (
	"github.com/jrsteele09/go-session-identity/users"
)

// Scope names one slot for a credential record
type Scope int

const (
	ScopeNone          Scope = iota // No identity
	ScopeRegular                    // The logged in user
	ScopeOriginalAdmin              // The super admin to restore to when impersonation stops
	ScopeImpersonation              // The user a super admin is acting as
)

// Scopes lists every storable scope
var Scopes = []Scope{ScopeRegular, ScopeOriginalAdmin, ScopeImpersonation}

func (s Scope) String() string {
	switch s {
	case ScopeRegular:
		return "regular"
	case ScopeOriginalAdmin:
		return "original_admin"
	case ScopeImpersonation:
		return "impersonation"
	default:
		return "none"
	}
}

// MarshalText makes scopes readable in JSON and logs
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record is one stored credential. AccessToken is required; a record without
// one is treated as absent.
type Record struct {
	Scope             Scope       `json:"scope"`
	AccessToken       string      `json:"access_token"`
	RefreshToken      string      `json:"refresh_token,omitempty"`
	Owner             *users.User `json:"owner,omitempty"`
	PrimaryResourceID string      `json:"restaurant_id,omitempty"` // Primary restaurant of the owner
	Message           string      `json:"message,omitempty"`       // Impersonation only
}

// Email returns the owner's email, or "" when the owner is unknown
func (r *Record) Email() string {
	if r == nil || r.Owner == nil {
		return ""
	}
	return r.Owner.Email
}

// WithScope returns a copy of the record re-labelled for another scope
func (r Record) WithScope(scope Scope) Record {
	r.Scope = scope
	r.Owner = r.Owner.Clone()
	return r
}
