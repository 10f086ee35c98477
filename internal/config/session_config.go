package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8080")
}

// GetRequestTimeout bounds every authorization API call made by the session manager
func (Session) GetRequestTimeout() time.Duration {
	return GetEnvDuration("SESSION_REQUEST_TIMEOUT", 15*time.Second)
}

// GetRedisAddr returns the address of the Redis backing the cross-tab lifetime.
// Empty means the cross-tab lifetime is file backed.
func (Session) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Session) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Session) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

func (Session) GetRedisNamespace() string {
	return GetEnv("REDIS_NAMESPACE", "session")
}

func (Session) GetStateDir() string {
	return GetEnv("SESSION_STATE_DIR", "./.session")
}
