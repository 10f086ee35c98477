package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-identity/internal/config"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/rs/zerolog/log"
)

const DefaultSuperAdminUsername = "admin"

// InitialiseSystem creates the super admin user if it does not exist yet.
// A password is generated and logged once when none is configured.
func (s *Server) InitialiseSystem(ctx context.Context, cfg config.Config) error {
	generatedPassword, err := s.createSuperAdmin(ctx, cfg.GetSuperAdminEmail(), cfg.GetSuperAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap super admin: %w", err)
	}

	if generatedPassword != "" {
		log.Info().
			Str("base_url", cfg.GetBaseURL()).
			Str("issuer", cfg.GetIssuer()).
			Str("email", cfg.GetSuperAdminEmail()).
			Str("password", generatedPassword).
			Msg("super admin created")
	}
	return nil
}

// createSuperAdmin creates the super admin user if none exists
func (s *Server) createSuperAdmin(_ context.Context, adminUserEmail, defaultPassword string) (generatedPassword string, err error) {
	existingUser, err := s.repos.Users.GetByEmail(adminUserEmail)
	if err == nil && existingUser != nil && existingUser.IsSuperAdmin() {
		return "", nil
	}

	generatedPassword = defaultPassword
	if generatedPassword == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server createSuperAdmin] failed to generate password: %w", err)
		}
		generatedPassword = base64.URLEncoding.EncodeToString(passwordBytes)
	}

	passwordHash, err := users.HashPassword(generatedPassword)
	if err != nil {
		return "", fmt.Errorf("[server createSuperAdmin] failed to hash password: %w", err)
	}

	adminUser := &users.User{
		Email:        adminUserEmail,
		Username:     DefaultSuperAdminUsername,
		PasswordHash: passwordHash,
		FirstName:    "System",
		LastName:     "Administrator",
		DateJoined:   time.Now(),
		SystemRoles:  []users.RoleType{users.RoleSuperAdmin},
	}

	if err := s.repos.Users.Upsert(adminUser); err != nil {
		return "", fmt.Errorf("[server createSuperAdmin] failed to create super admin: %w", err)
	}
	return generatedPassword, nil
}
