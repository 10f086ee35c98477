package users

// UserRepo stores accounts for the authorization API. Emails are matched
// case-insensitively; lookups of a missing user return errors.ErrUserNotFound.
type UserRepo interface {
	Upsert(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id string) (*User, error)
	SetBlocked(email string, blocked bool) error
}
