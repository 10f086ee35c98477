package users

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user role either at system or restaurant level
type RoleType string

const (
	// System-level roles
	RoleSuperAdmin RoleType = "super_admin" // Can impersonate users and manage every restaurant

	// Restaurant-level roles
	RoleRestaurantOwner RoleType = "restaurant_owner" // Manages a restaurant's menu, staff and settings
	RoleRestaurantStaff RoleType = "restaurant_staff" // Works within a restaurant
)

// RestaurantMembership represents a user's membership and roles within a specific restaurant
type RestaurantMembership struct {
	RestaurantID string     `json:"restaurant_id" yaml:"restaurant_id"`
	Roles        []RoleType `json:"roles" yaml:"roles"`
	JoinedAt     time.Time  `json:"joined_at" yaml:"joined_at"`
}

// User is the identity record shared by the authorization API and the session manager.
// It is what the credential store keeps as the owner of a token.
type User struct {
	ID           string    `json:"id,omitempty" yaml:"id,omitempty"`                   // Unique identifier for the user
	Email        string    `json:"email,omitempty" yaml:"email,omitempty"`             // User's email address
	Username     string    `json:"username,omitempty" yaml:"username,omitempty"`       // Unique username
	PasswordHash string    `json:"-" yaml:"-"`                                         // Hashed version of the user's password - never serialize
	FirstName    string    `json:"first_name,omitempty" yaml:"first_name,omitempty"`   // First name of the user
	LastName     string    `json:"last_name,omitempty" yaml:"last_name,omitempty"`     // Last name of the user
	DateJoined   time.Time `json:"date_joined,omitempty" yaml:"date_joined,omitempty"` // Date and time when the user registered

	// Role and restaurant membership
	SystemRoles []RoleType             `json:"system_roles,omitempty" yaml:"system_roles,omitempty"` // System-wide roles (super_admin)
	Restaurants []RestaurantMembership `json:"restaurants,omitempty" yaml:"restaurants,omitempty"`   // Per-restaurant roles and membership

	Blocked bool `json:"blocked,omitempty" yaml:"blocked,omitempty"` // Blocked, has the user been blocked from logging in
}

// NormaliseEmail lower-cases and trims an email so lookups are case insensitive
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address parses as a bare RFC 5322 address
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsSuperAdmin returns true if the user has super admin privileges
func (u *User) IsSuperAdmin() bool {
	if u == nil {
		return false
	}
	for _, role := range u.SystemRoles {
		if role == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// RoleNames flattens system roles into the string form carried in token claims
func (u *User) RoleNames() []string {
	roles := make([]string, 0, len(u.SystemRoles))
	for _, r := range u.SystemRoles {
		roles = append(roles, string(r))
	}
	return roles
}

// PrimaryRestaurantID returns the restaurant the user joined first, or "" if none.
func (u *User) PrimaryRestaurantID() string {
	if u == nil || len(u.Restaurants) == 0 {
		return ""
	}
	primary := u.Restaurants[0]
	for _, m := range u.Restaurants[1:] {
		if m.JoinedAt.Before(primary.JoinedAt) {
			primary = m
		}
	}
	return primary.RestaurantID
}

// HasRestaurant reports whether the user is a member of the restaurant
func (u *User) HasRestaurant(restaurantID string) bool {
	for _, m := range u.Restaurants {
		if m.RestaurantID == restaurantID {
			return true
		}
	}
	return false
}

// DisplayName returns "First Last", falling back to the username and then the email
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Clone returns a deep copy so stored users cannot be mutated through returned pointers
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.SystemRoles = append([]RoleType(nil), u.SystemRoles...)
	c.Restaurants = append([]RestaurantMembership(nil), u.Restaurants...)
	return &c
}
