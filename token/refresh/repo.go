package refresh

import (
	"time"
)

// StoredRefreshToken represents the server-side storage of refresh token metadata.
// The client only receives the Token field (a random string). All other fields are
// server-side metadata used for validation and token refresh operations.
type StoredRefreshToken struct {
	Token          string    // The actual random token string (sent to client)
	UserID         string    // Subject the token refreshes
	ImpersonatorID string    // Super admin acting as UserID, empty for a direct login
	Iat            time.Time // Issued at time
}

// Repo manages server-side storage of refresh token metadata.
// Refresh tokens sent to clients are opaque random strings; this repo stores
// the associated metadata keyed by the token string.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetBySubject(userID, impersonatorID string) (*StoredRefreshToken, error)
}
