package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/rs/zerolog/log"
)

// Claims are the access token claims issued by the authorization API.
// Impersonator is set only on tokens minted by an impersonation and names the super admin behind them.
type Claims struct {
	Email        string   `json:"email"`
	Roles        []string `json:"roles,omitempty"`
	Impersonator string   `json:"imp,omitempty"`
	jwt.RegisteredClaims
}

// IsImpersonated reports whether the token was issued through an impersonation
func (c *Claims) IsImpersonated() bool {
	return c.Impersonator != ""
}

// HasRole reports whether the claims carry the given system role
func (c *Claims) HasRole(role users.RoleType) bool {
	for _, r := range c.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

type Manager struct {
	signer            Signer
	issuer            string
	accessTokenExpiry time.Duration
	revokedCache      RevokedTokenCache
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithAccessTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = expiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:       signer,
		revokedCache: NewInMemoryRevokedTokenCache(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// CreateAccessToken issues an access token for user. A non-nil impersonator marks
// the token as an impersonation token.
func (m *Manager) CreateAccessToken(user *users.User, impersonator *users.User) (string, error) {
	now := m.nowFunc()
	claims := Claims{
		Email: user.Email,
		Roles: user.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenExpiry)),
			ID:        uuid.New().String(),
		},
	}
	if impersonator != nil {
		claims.Impersonator = impersonator.ID
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("[Manager.CreateAccessToken] %w", err)
	}
	return signed, nil
}

// Parse validates a raw access token and returns its claims.
// Expired, revoked, badly signed or foreign-issuer tokens fail with ErrInvalidToken.
func (m *Manager) Parse(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.Wrapf(errors.ErrInvalidToken, "[Manager.Parse] %s", err.Error())
	}
	if !parsed.Valid {
		return nil, errors.ErrInvalidToken
	}
	if m.revokedCache.IsRevoked(claims.ID) {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "[Manager.Parse] revoked")
	}
	return claims, nil
}

// Revoke marks an access token unusable for the remainder of its lifetime
func (m *Manager) Revoke(claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return errors.ErrInvalidToken
	}
	exp := m.nowFunc().Add(m.accessTokenExpiry)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return m.revokedCache.Add(claims.ID, exp)
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (m *Manager) CleanupRevokedTokens() {
	if n := m.revokedCache.Cleanup(m.nowFunc()); n > 0 {
		log.Debug().Int("purged", n).Msg("revoked token cache cleaned")
	}
}
