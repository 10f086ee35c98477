package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// SecurityConfig covers the reference authorization API's signing and bootstrap settings.
type SecurityConfig interface {
	GetJWTSecret() string
	GetIssuer() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetSuperAdminEmail() string
	GetSuperAdminPassword() string
}

// SessionConfig covers the client side session manager.
type SessionConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisNamespace() string
	GetStateDir() string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Session
}

func New() Config {
	return mainConfig{}
}
