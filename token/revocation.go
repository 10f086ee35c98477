package token

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-session-identity/internal/errors"
)

// RevokedTokenCache remembers revoked access tokens by jti. An entry only has
// to outlive the token it revokes, after which Cleanup may drop it.
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	Cleanup(now time.Time) int
}

type inMemoryRevokedTokens struct {
	mu      sync.RWMutex
	expires map[string]time.Time
}

func NewInMemoryRevokedTokenCache() RevokedTokenCache {
	return &inMemoryRevokedTokens{expires: make(map[string]time.Time)}
}

func (c *inMemoryRevokedTokens) Add(jti string, exp time.Time) error {
	if jti == "" {
		return errors.Wrapf(errors.ErrInvalidToken, "revoke: token has no jti")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// a later expiry wins when the same jti is revoked twice
	if prev, ok := c.expires[jti]; !ok || exp.After(prev) {
		c.expires[jti] = exp
	}
	return nil
}

func (c *inMemoryRevokedTokens) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.expires[jti]
	return ok
}

// Cleanup drops entries whose token expired before now and reports how many went
func (c *inMemoryRevokedTokens) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	purged := 0
	for jti, exp := range c.expires {
		if exp.Before(now) {
			delete(c.expires, jti)
			purged++
		}
	}
	return purged
}
