package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jrsteele09/go-session-identity/credentials"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/rs/zerolog/log"
)

// Machine performs session transitions on top of a credential store. It keeps
// no session data of its own; only the restore-in-progress flag lives here.
type Machine struct {
	store     *credentials.Store
	restoring atomic.Bool
}

func New(store *credentials.Store) *Machine {
	return &Machine{store: store}
}

func (m *Machine) Store() *credentials.Store {
	return m.store
}

func (m *Machine) State(ctx context.Context) State {
	if m.restoring.Load() {
		return StateRestoring
	}
	if m.store.Get(ctx, credentials.ScopeImpersonation) != nil {
		return StateImpersonating
	}
	return StateNormal
}

func (m *Machine) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		State:        m.State(ctx),
		ActiveScope:  m.store.ActiveScope(ctx),
		User:         m.store.MainUser(ctx),
		RestaurantID: m.store.MainResourceID(ctx),
	}
	if imp := m.store.Get(ctx, credentials.ScopeImpersonation); imp != nil {
		snap.IsImpersonating = true
		snap.ImpersonatedUserEmail = imp.Email()
		snap.ImpersonatedUserData = imp.Owner
		snap.ImpersonationMessage = imp.Message
	}
	if orig := m.store.Get(ctx, credentials.ScopeOriginalAdmin); orig != nil {
		snap.OriginalAdminEmail = orig.Email()
	}
	return snap
}

// Login replaces whatever session the tab had with rec as the regular identity
func (m *Machine) Login(ctx context.Context, rec credentials.Record) error {
	if err := m.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("[Machine.Login] %w", err)
	}
	if err := m.store.Set(ctx, credentials.ScopeRegular, rec); err != nil {
		return fmt.Errorf("[Machine.Login] %w", err)
	}
	log.Info().Str("email", rec.Email()).Msg("logged in")
	return nil
}

func (m *Machine) Logout(ctx context.Context) error {
	if err := m.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("[Machine.Logout] %w", err)
	}
	log.Info().Msg("logged out")
	return nil
}

// AdminCredential returns the credential that authorises impersonation calls.
// It prefers the saved original admin, then the regular record, then the main
// slot as long as that is not the impersonation token. reconstructed is true
// when impersonating without a saved original admin. Nothing is written.
func (m *Machine) AdminCredential(ctx context.Context) (credentials.Record, bool, error) {
	if orig := m.store.Get(ctx, credentials.ScopeOriginalAdmin); orig != nil {
		return *orig, false, nil
	}

	imp := m.store.Get(ctx, credentials.ScopeImpersonation)
	impersonating := imp != nil

	if reg := m.store.Get(ctx, credentials.ScopeRegular); reg != nil {
		return reg.WithScope(credentials.ScopeOriginalAdmin), impersonating, nil
	}

	main := m.store.MainToken(ctx)
	if main != "" && (imp == nil || main != imp.AccessToken) {
		return credentials.Record{
			Scope:             credentials.ScopeOriginalAdmin,
			AccessToken:       main,
			Owner:             m.store.MainUser(ctx),
			PrimaryResourceID: m.store.MainResourceID(ctx),
		}, impersonating, nil
	}
	return credentials.Record{}, false, errors.ErrMissingOriginalAdmin
}

// BeginImpersonation saves admin as the original admin unless one is already
// saved, then makes imp the active identity.
func (m *Machine) BeginImpersonation(ctx context.Context, admin, imp credentials.Record) error {
	if err := m.impersonate(ctx, admin, imp); err != nil {
		return fmt.Errorf("[Machine.BeginImpersonation] %w", err)
	}
	log.Info().Str("admin", admin.Email()).Str("impersonated", imp.Email()).Msg("impersonation started")
	return nil
}

// SwitchImpersonation replaces the impersonated identity. A missing original
// admin is rebuilt from admin.
func (m *Machine) SwitchImpersonation(ctx context.Context, admin, imp credentials.Record) error {
	if m.store.Get(ctx, credentials.ScopeImpersonation) == nil {
		return fmt.Errorf("[Machine.SwitchImpersonation] %w", errors.ErrNotImpersonating)
	}
	if err := m.impersonate(ctx, admin, imp); err != nil {
		return fmt.Errorf("[Machine.SwitchImpersonation] %w", err)
	}
	log.Info().Str("admin", admin.Email()).Str("impersonated", imp.Email()).Msg("impersonation switched")
	return nil
}

func (m *Machine) impersonate(ctx context.Context, admin, imp credentials.Record) error {
	savedAdmin := false
	if m.store.Get(ctx, credentials.ScopeOriginalAdmin) == nil {
		if err := m.store.Set(ctx, credentials.ScopeOriginalAdmin, admin); err != nil {
			return err
		}
		savedAdmin = true
	}
	hadImpersonation := m.store.Get(ctx, credentials.ScopeImpersonation) != nil
	if err := m.store.Set(ctx, credentials.ScopeImpersonation, imp); err != nil {
		m.rollback(ctx, savedAdmin, hadImpersonation)
		return err
	}
	return nil
}

// rollback undoes the parts of a failed impersonation that were not there before it
func (m *Machine) rollback(ctx context.Context, savedAdmin, hadImpersonation bool) {
	if !hadImpersonation {
		if err := m.store.Clear(ctx, credentials.ScopeImpersonation); err != nil {
			log.Err(err).Msg("rolling back impersonation failed")
		}
	}
	if savedAdmin {
		if err := m.store.Clear(ctx, credentials.ScopeOriginalAdmin); err != nil {
			log.Err(err).Msg("rolling back original admin failed")
		}
	}
}

// Restore makes the original admin the regular identity again and drops the
// impersonation. When the original admin is missing it is rebuilt from the
// regular record and reconstructed is true.
func (m *Machine) Restore(ctx context.Context) (reconstructed bool, err error) {
	if !m.restoring.CompareAndSwap(false, true) {
		return false, fmt.Errorf("[Machine.Restore] %w", errors.ErrSessionBusy)
	}
	defer m.restoring.Store(false)

	imp := m.store.Get(ctx, credentials.ScopeImpersonation)
	orig := m.store.Get(ctx, credentials.ScopeOriginalAdmin)
	if imp == nil && orig == nil {
		return false, fmt.Errorf("[Machine.Restore] %w", errors.ErrNotImpersonating)
	}
	if orig == nil {
		reg := m.store.Get(ctx, credentials.ScopeRegular)
		if reg == nil {
			return false, fmt.Errorf("[Machine.Restore] %w", errors.ErrMissingOriginalAdmin)
		}
		orig = reg
		reconstructed = true
	}

	if err := m.store.Set(ctx, credentials.ScopeRegular, orig.WithScope(credentials.ScopeRegular)); err != nil {
		return reconstructed, fmt.Errorf("[Machine.Restore] %w", err)
	}
	for _, scope := range []credentials.Scope{credentials.ScopeImpersonation, credentials.ScopeOriginalAdmin} {
		if err := m.store.Clear(ctx, scope); err != nil {
			return reconstructed, fmt.Errorf("[Machine.Restore] %w", err)
		}
	}
	log.Info().Str("admin", orig.Email()).Bool("reconstructed", reconstructed).Msg("impersonation stopped")
	return reconstructed, nil
}
