package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/token"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores parsed token claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the claims injected by RequireAuth
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok && claims != nil
}

// RequireAuth is middleware that validates a Bearer access token
// and injects its claims into the request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, "unauthorized", "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
				writeJSONError(w, "unauthorized", "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := s.auth.Introspect(strings.TrimSpace(parts[1]))
			if err != nil {
				description := "Invalid token"
				if errors.Is(err, errors.ErrTokenExpired) {
					description = "Token expired"
				}
				log.Debug().Err(err).Msg("bearer token rejected")
				writeJSONError(w, "unauthorized", description, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireSuperAdmin is middleware that validates super-admin status.
// Must be chained after RequireAuth. Impersonation tokens never pass, even when the
// impersonated user somehow carries the role.
func (s *Server) RequireSuperAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !claims.HasRole(users.RoleSuperAdmin) || claims.IsImpersonated() {
				writeJSONError(w, "forbidden", "Super admin access required", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
