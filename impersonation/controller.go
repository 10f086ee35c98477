// Package impersonation orchestrates login, logout and super admin
// impersonation against the authorization API.
package impersonation

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/credentials"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/internal/utils"
	"github.com/jrsteele09/go-session-identity/session"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const DefaultRequestTimeout = 15 * time.Second

// API is the subset of the authorization API the controller needs.
// Authorised calls must use the store's main slot as their bearer token.
type API interface {
	Login(ctx context.Context, email, password string) (*apimodel.TokenResponse, error)
	Register(ctx context.Context, req apimodel.RegisterRequest) (*apimodel.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Impersonate(ctx context.Context, email string) (*apimodel.ImpersonateResponse, error)
	LookupUser(ctx context.Context, userID string) (*users.User, error)
	PrimaryRestaurant(ctx context.Context) (*apimodel.RestaurantResponse, error)
}

// Controller runs one session mutation at a time. A call made while another is
// in flight fails at once with ErrSessionBusy.
type Controller struct {
	machine *session.Machine
	store   *credentials.Store
	api     API
	guard   *semaphore.Weighted
	timeout time.Duration
}

type ControllerOption func(*Controller)

// WithRequestTimeout bounds each authorization API call
func WithRequestTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewController(machine *session.Machine, api API, opts ...ControllerOption) *Controller {
	c := &Controller{
		machine: machine,
		store:   machine.Store(),
		api:     api,
		guard:   semaphore.NewWeighted(1),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Snapshot(ctx context.Context) session.Snapshot {
	return c.machine.Snapshot(ctx)
}

func (c *Controller) acquire() bool {
	return c.guard.TryAcquire(1)
}

func (c *Controller) release() {
	c.guard.Release(1)
}

// call runs one API request under the request timeout
func (c *Controller) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(ctx)
}

// borrowedCall runs one API request with rec's token in the main slot
func (c *Controller) borrowedCall(ctx context.Context, rec credentials.Record, fn func(ctx context.Context) error) error {
	return c.call(ctx, func(ctx context.Context) error {
		return c.store.Borrow(ctx, rec, fn)
	})
}

func (c *Controller) Login(ctx context.Context, email, password string) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()

	var resp *apimodel.TokenResponse
	err := c.call(ctx, func(ctx context.Context) (err error) {
		resp, err = c.api.Login(ctx, users.NormaliseEmail(email), password)
		return err
	})
	if err != nil {
		return c.fail("login", err)
	}
	return c.establish(ctx, "login", resp)
}

func (c *Controller) Register(ctx context.Context, req apimodel.RegisterRequest) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()

	var resp *apimodel.TokenResponse
	err := c.call(ctx, func(ctx context.Context) (err error) {
		resp, err = c.api.Register(ctx, req)
		return err
	})
	if err != nil {
		return c.fail("register", err)
	}
	return c.establish(ctx, "register", resp)
}

// establish makes a validated token response the regular identity
func (c *Controller) establish(ctx context.Context, op string, resp *apimodel.TokenResponse) Result {
	if err := resp.Validate(); err != nil {
		return c.fail(op, err)
	}
	rec := credentials.Record{
		AccessToken:       resp.Access,
		RefreshToken:      resp.Refresh,
		Owner:             resp.User,
		PrimaryResourceID: resp.User.PrimaryRestaurantID(),
	}
	if err := c.machine.Login(ctx, rec); err != nil {
		return c.fail(op, err)
	}
	return success(c.machine.Snapshot(ctx), false)
}

// Logout always clears the local session. Revoking the tokens server side is best effort.
func (c *Controller) Logout(ctx context.Context) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()

	for _, scope := range []credentials.Scope{credentials.ScopeImpersonation, credentials.ScopeRegular} {
		rec := c.store.Get(ctx, scope)
		if rec == nil {
			continue
		}
		err := c.borrowedCall(ctx, *rec, func(ctx context.Context) error {
			return c.api.Logout(ctx, rec.RefreshToken)
		})
		if err != nil {
			log.Warn().Err(err).Stringer("scope", scope).Msg("server side logout failed")
		}
	}
	if err := c.machine.Logout(ctx); err != nil {
		return c.fail("logout", err)
	}
	return success(c.machine.Snapshot(ctx), false)
}

// StartImpersonation resolves userID to an email with the admin token and impersonates that user
func (c *Controller) StartImpersonation(ctx context.Context, userID string) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()
	return c.impersonateByID(ctx, "start impersonation", userID)
}

// SwitchImpersonation moves an ongoing impersonation to userID, rebuilding the
// original admin credential first if it went missing.
func (c *Controller) SwitchImpersonation(ctx context.Context, userID string) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()

	if c.machine.State(ctx) != session.StateImpersonating {
		return c.fail("switch impersonation", errors.ErrNotImpersonating)
	}
	return c.impersonateByID(ctx, "switch impersonation", userID)
}

// ImpersonateUser impersonates email, starting or switching depending on the current state
func (c *Controller) ImpersonateUser(ctx context.Context, email string) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()
	return c.impersonateUser(ctx, "impersonate user", email)
}

func (c *Controller) impersonateByID(ctx context.Context, op, userID string) Result {
	if strings.TrimSpace(userID) == "" {
		return c.fail(op, errors.Wrapf(errors.ErrInvalidRequest, "user id is required"))
	}
	admin, _, err := c.machine.AdminCredential(ctx)
	if err != nil {
		return c.fail(op, err)
	}

	var target *users.User
	err = c.borrowedCall(ctx, admin, func(ctx context.Context) (err error) {
		target, err = c.api.LookupUser(ctx, userID)
		return err
	})
	if err != nil {
		return c.fail(op, err)
	}
	if target == nil || strings.TrimSpace(target.Email) == "" {
		return c.fail(op, errors.Wrapf(errors.ErrMalformedResponse, "user %s has no email", userID))
	}
	return c.impersonateUser(ctx, op, target.Email)
}

func (c *Controller) impersonateUser(ctx context.Context, op, email string) Result {
	email = users.NormaliseEmail(email)
	if email == "" {
		return c.fail(op, errors.Wrapf(errors.ErrInvalidRequest, "email is required"))
	}

	admin, reconstructed, err := c.machine.AdminCredential(ctx)
	if err != nil {
		return c.fail(op, err)
	}

	var resp *apimodel.ImpersonateResponse
	err = c.borrowedCall(ctx, admin, func(ctx context.Context) (err error) {
		resp, err = c.api.Impersonate(ctx, email)
		return err
	})
	if err != nil {
		return c.fail(op, err)
	}
	if err := resp.Validate(); err != nil {
		return c.fail(op, err)
	}

	imp := credentials.Record{
		AccessToken:       resp.Access,
		RefreshToken:      resp.Refresh,
		Owner:             resp.ImpersonatedUser,
		PrimaryResourceID: resp.ImpersonatedUser.PrimaryRestaurantID(),
		Message:           resp.Message,
	}
	if c.machine.State(ctx) == session.StateImpersonating {
		err = c.machine.SwitchImpersonation(ctx, admin, imp)
	} else {
		err = c.machine.BeginImpersonation(ctx, admin, imp)
	}
	if err != nil {
		return c.fail(op, err)
	}

	if imp.PrimaryResourceID == "" && !utils.Value(resp.RestaurantSimulation) {
		c.fetchRestaurant(ctx, imp)
	}
	return success(c.machine.Snapshot(ctx), reconstructed)
}

// fetchRestaurant caches the impersonated user's primary restaurant. Failures are only logged.
func (c *Controller) fetchRestaurant(ctx context.Context, imp credentials.Record) {
	var restaurant *apimodel.RestaurantResponse
	err := c.borrowedCall(ctx, imp, func(ctx context.Context) (err error) {
		restaurant, err = c.api.PrimaryRestaurant(ctx)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("impersonated", imp.Email()).Msg("primary restaurant fetch failed")
		return
	}
	if restaurant == nil || restaurant.RestaurantID == "" {
		return
	}
	imp.PrimaryResourceID = restaurant.RestaurantID
	if err := c.store.Set(ctx, credentials.ScopeImpersonation, imp); err != nil {
		log.Warn().Err(err).Str("impersonated", imp.Email()).Msg("caching primary restaurant failed")
	}
}

// StopImpersonation restores the original admin as the regular identity
func (c *Controller) StopImpersonation(ctx context.Context) Result {
	if !c.acquire() {
		return failure(errors.ErrSessionBusy)
	}
	defer c.release()

	reconstructed, err := c.machine.Restore(ctx)
	if err != nil {
		return c.fail("stop impersonation", err)
	}
	return success(c.machine.Snapshot(ctx), reconstructed)
}

func (c *Controller) fail(op string, err error) Result {
	log.Err(err).Str("op", op).Msg("session operation failed")
	return failure(err)
}
