package config

import "time"

type Security struct{}

var _ SecurityConfig = Security{}

// GetJWTSecret returns the HMAC secret used to sign access tokens.
// The default is only suitable for local development.
func (Security) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "dev-only-secret-change-me")
}

func (Security) GetIssuer() string {
	return GetEnv("JWT_ISSUER", EnvVars{}.GetBaseURL())
}

func (Security) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour)
}

func (Security) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour) // 7 days
}

func (Security) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Security) GetSuperAdminEmail() string {
	return GetEnv("SUPERADMIN_EMAIL", "admin@localhost")
}

// GetSuperAdminPassword returns the bootstrap password. Empty means one is generated at start.
func (Security) GetSuperAdminPassword() string {
	return GetEnv("SUPERADMIN_PASSWORD", "")
}
