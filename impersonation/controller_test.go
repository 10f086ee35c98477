package impersonation_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/broadcast"
	"github.com/jrsteele09/go-session-identity/credentials"
	"github.com/jrsteele09/go-session-identity/impersonation"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/internal/utils"
	"github.com/jrsteele09/go-session-identity/kvstore/memory"
	"github.com/jrsteele09/go-session-identity/session"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	api        *fakeAPI
	store      *credentials.Store
	machine    *session.Machine
	controller *impersonation.Controller
}

func setupController(t *testing.T, opts ...impersonation.ControllerOption) *controllerFixture {
	t.Helper()
	store := credentials.New(memory.NewInMemoryRepo(), memory.NewInMemoryRepo(), credentials.WithNotifier(broadcast.NewHub(), "tab-a"))
	api := newFakeAPI()
	api.store = store
	machine := session.New(store)
	return &controllerFixture{
		api:        api,
		store:      store,
		machine:    machine,
		controller: impersonation.NewController(machine, api, opts...),
	}
}

func (f *controllerFixture) login(t *testing.T) {
	t.Helper()
	res := f.controller.Login(context.Background(), "admin@example.com", "Password123")
	require.True(t, res.Success, res.Error)
}

// withTokens makes the fake API answer impersonations with fixed access tokens per email
func (f *controllerFixture) withTokens(tokens map[string]string) {
	f.api.impersonate = func(_ context.Context, email string) (*apimodel.ImpersonateResponse, error) {
		resp := impersonateResponse(email)
		resp.Access = tokens[email]
		return resp, nil
	}
}

func requireFailure(t *testing.T, res impersonation.Result, target error) {
	t.Helper()
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
	require.ErrorIs(t, res.Err(), target)
}

func TestScenarioA_Login(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)

	res := f.controller.Login(ctx, "Admin@Example.com", "Password123")
	require.True(t, res.Success)
	require.NoError(t, res.Err())

	require.Equal(t, "R1", f.store.Get(ctx, credentials.ScopeRegular).AccessToken)
	require.Equal(t, credentials.ScopeRegular, f.store.ActiveScope(ctx))
	require.Equal(t, "admin@example.com", f.api.callsNamed("login")[0].arg)

	snap, ok := res.Data.(session.Snapshot)
	require.True(t, ok)
	require.Equal(t, "admin@example.com", snap.User.Email)
}

func TestScenarioB_ImpersonateUser(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.withTokens(map[string]string{"u@x.com": "I1"})
	f.login(t)

	res := f.controller.ImpersonateUser(ctx, "u@x.com")
	require.True(t, res.Success, res.Error)
	require.False(t, res.Reconstructed)

	require.Equal(t, "R1", f.store.Get(ctx, credentials.ScopeOriginalAdmin).AccessToken)
	require.Equal(t, "I1", f.store.Get(ctx, credentials.ScopeImpersonation).AccessToken)
	require.Equal(t, credentials.ScopeImpersonation, f.store.ActiveScope(ctx))
	require.Equal(t, "I1", f.store.MainToken(ctx))

	// the impersonate call is authorised by the admin, the restaurant fetch by the impersonated user
	require.Equal(t, []string{"R1"}, bearers(f.api.callsNamed("impersonate")))
	require.Equal(t, []string{"I1"}, bearers(f.api.callsNamed("restaurant")))
	require.Equal(t, "rest-fetched", f.machine.Snapshot(ctx).RestaurantID)
}

func TestScenarioC_StopImpersonation(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.withTokens(map[string]string{"u@x.com": "I1"})
	f.login(t)
	require.True(t, f.controller.ImpersonateUser(ctx, "u@x.com").Success)

	res := f.controller.StopImpersonation(ctx)
	require.True(t, res.Success, res.Error)
	require.False(t, res.Reconstructed)

	require.Nil(t, f.store.Get(ctx, credentials.ScopeImpersonation))
	require.Nil(t, f.store.Get(ctx, credentials.ScopeOriginalAdmin))
	require.Equal(t, "R1", f.store.MainToken(ctx))
	require.Equal(t, session.StateNormal, f.machine.State(ctx))
}

func TestScenarioD_SwitchWhileImpersonating(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.withTokens(map[string]string{"u@x.com": "I1", "v@x.com": "I2"})
	f.login(t)
	require.True(t, f.controller.ImpersonateUser(ctx, "u@x.com").Success)

	res := f.controller.ImpersonateUser(ctx, "v@x.com")
	require.True(t, res.Success, res.Error)

	require.Equal(t, "R1", f.store.Get(ctx, credentials.ScopeOriginalAdmin).AccessToken)
	require.Equal(t, "I2", f.store.Get(ctx, credentials.ScopeImpersonation).AccessToken)
	require.Equal(t, []string{"R1", "R1"}, bearers(f.api.callsNamed("impersonate")))
}

func TestScenarioE_StopWithoutImpersonation(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	before := f.store.Snapshot(ctx)

	res := f.controller.StopImpersonation(ctx)
	requireFailure(t, res, errors.ErrNotImpersonating)
	require.Equal(t, before, f.store.Snapshot(ctx))
}

func TestLogin_MalformedResponse(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.api.loginResp = &apimodel.TokenResponse{Refresh: "only-refresh"}

	res := f.controller.Login(ctx, "admin@example.com", "Password123")
	requireFailure(t, res, errors.ErrMalformedResponse)
	require.ErrorIs(t, res.Err(), errors.ErrAuthCallFailure)
	require.Empty(t, f.store.Snapshot(ctx))
}

func TestLogin_APIErrorKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	before := f.store.Snapshot(ctx)

	f.api.loginErr = errors.Wrapf(errors.ErrAuthCallFailure, "Invalid email or password")
	f.api.loginResp = nil
	res := f.controller.Login(ctx, "admin@example.com", "wrong")
	requireFailure(t, res, errors.ErrAuthCallFailure)
	require.Contains(t, res.Error, "Invalid email or password")
	require.Equal(t, before, f.store.Snapshot(ctx))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)

	res := f.controller.Register(ctx, apimodel.RegisterRequest{Email: "new@example.com", Password: "Password123"})
	require.True(t, res.Success, res.Error)
	rec := f.store.Get(ctx, credentials.ScopeRegular)
	require.Equal(t, "N1", rec.AccessToken)
	require.Equal(t, "rest-new", rec.PrimaryResourceID)
}

func TestImpersonateUser_MalformedResponses(t *testing.T) {
	malformed := map[string]*apimodel.ImpersonateResponse{
		"missing access":                  {ImpersonatedUser: &users.User{Email: "u@x.com"}},
		"missing impersonated user":       {Access: "I1"},
		"impersonated user without email": {Access: "I1", ImpersonatedUser: &users.User{ID: "u1"}},
		"empty body":                      nil,
	}

	for name, resp := range malformed {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := setupController(t)
			f.login(t)
			f.api.impersonate = func(context.Context, string) (*apimodel.ImpersonateResponse, error) {
				return resp, nil
			}
			before := f.store.Snapshot(ctx)

			res := f.controller.ImpersonateUser(ctx, "u@x.com")
			requireFailure(t, res, errors.ErrMalformedResponse)
			require.Equal(t, before, f.store.Snapshot(ctx))
			require.Empty(t, f.api.callsNamed("restaurant"))
		})
	}
}

func TestImpersonateUser_MalformedWhileImpersonating(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	require.True(t, f.controller.ImpersonateUser(ctx, "u@x.com").Success)
	before := f.store.Snapshot(ctx)

	f.api.impersonate = func(context.Context, string) (*apimodel.ImpersonateResponse, error) {
		return &apimodel.ImpersonateResponse{ImpersonatedUser: &users.User{Email: "v@x.com"}}, nil
	}
	res := f.controller.ImpersonateUser(ctx, "v@x.com")
	requireFailure(t, res, errors.ErrMalformedResponse)
	require.Equal(t, before, f.store.Snapshot(ctx))
}

func TestImpersonateUser_TransportErrorSurfacesMessage(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	before := f.store.Snapshot(ctx)

	f.api.impersonate = func(context.Context, string) (*apimodel.ImpersonateResponse, error) {
		return nil, errors.Wrapf(errors.ErrTransport, "dial tcp: connection refused")
	}
	res := f.controller.ImpersonateUser(ctx, "u@x.com")
	requireFailure(t, res, errors.ErrTransport)
	require.Contains(t, res.Error, "connection refused")
	require.Equal(t, before, f.store.Snapshot(ctx))
	require.Equal(t, "R1", f.store.MainToken(ctx))
}

func TestImpersonateUser_RequiresAdminCredential(t *testing.T) {
	f := setupController(t)

	res := f.controller.ImpersonateUser(context.Background(), "u@x.com")
	requireFailure(t, res, errors.ErrMissingOriginalAdmin)
	require.Empty(t, f.api.callsNamed("impersonate"))
}

func TestImpersonateUser_EmptyEmail(t *testing.T) {
	f := setupController(t)
	f.login(t)

	res := f.controller.ImpersonateUser(context.Background(), "  ")
	requireFailure(t, res, errors.ErrInvalidRequest)
}

func TestImpersonateUser_SecondaryFetchFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	f.api.restaurantErr = errors.Wrapf(errors.ErrAuthCallFailure, "boom")
	f.api.restaurant = nil

	res := f.controller.ImpersonateUser(ctx, "u@x.com")
	require.True(t, res.Success, res.Error)
	require.Empty(t, f.store.Get(ctx, credentials.ScopeImpersonation).PrimaryResourceID)
	require.Equal(t, "I-u@x.com", f.store.MainToken(ctx))
}

func TestImpersonateUser_RestaurantFetchRules(t *testing.T) {
	tests := []struct {
		name       string
		simulation *bool
		restaurant string // primary restaurant carried by the impersonated user
		wantFetch  bool
		wantID     string
	}{
		{"unknown simulation", nil, "", true, "rest-fetched"},
		{"no simulated restaurant", utils.Ptr(false), "", true, "rest-fetched"},
		{"simulated restaurant", utils.Ptr(true), "", false, ""},
		{"user already has a restaurant", nil, "rest-own", false, "rest-own"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := setupController(t)
			f.login(t)
			f.api.impersonate = func(_ context.Context, email string) (*apimodel.ImpersonateResponse, error) {
				resp := impersonateResponse(email)
				resp.RestaurantSimulation = tt.simulation
				if tt.restaurant != "" {
					resp.ImpersonatedUser.Restaurants = []users.RestaurantMembership{{RestaurantID: tt.restaurant}}
				}
				return resp, nil
			}

			require.True(t, f.controller.ImpersonateUser(ctx, "u@x.com").Success)
			require.Equal(t, tt.wantFetch, len(f.api.callsNamed("restaurant")) == 1)
			require.Equal(t, tt.wantID, f.machine.Snapshot(ctx).RestaurantID)
		})
	}
}

func TestStartImpersonation(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)

	res := f.controller.StartImpersonation(ctx, "u1")
	require.True(t, res.Success, res.Error)

	lookups := f.api.callsNamed("lookup")
	require.Len(t, lookups, 1)
	require.Equal(t, "R1", lookups[0].bearer)
	require.Equal(t, "u1", lookups[0].arg)
	require.Equal(t, "u@x.com", joinArgs(f.api.callsNamed("impersonate")))
	require.Equal(t, "u@x.com", f.machine.Snapshot(ctx).ImpersonatedUserEmail)
}

func TestStartImpersonation_LookupFailure(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	before := f.store.Snapshot(ctx)

	res := f.controller.StartImpersonation(ctx, "missing")
	requireFailure(t, res, errors.ErrAuthCallFailure)
	require.Equal(t, before, f.store.Snapshot(ctx))
	require.Empty(t, f.api.callsNamed("impersonate"))
}

func TestSwitchImpersonation(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)

	requireFailure(t, f.controller.SwitchImpersonation(ctx, "v1"), errors.ErrNotImpersonating)

	require.True(t, f.controller.StartImpersonation(ctx, "u1").Success)
	res := f.controller.SwitchImpersonation(ctx, "v1")
	require.True(t, res.Success, res.Error)
	require.False(t, res.Reconstructed)

	// both lookups ran with the admin token even though u@x.com was active for the second
	require.Equal(t, []string{"R1", "R1"}, bearers(f.api.callsNamed("lookup")))
	require.Equal(t, "v@x.com", f.machine.Snapshot(ctx).ImpersonatedUserEmail)
	require.Equal(t, "R1", f.store.Get(ctx, credentials.ScopeOriginalAdmin).AccessToken)
}

func TestSwitchImpersonation_ReconstructsOriginalAdmin(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	require.True(t, f.controller.StartImpersonation(ctx, "u1").Success)
	require.NoError(t, f.store.Clear(ctx, credentials.ScopeOriginalAdmin))

	res := f.controller.SwitchImpersonation(ctx, "v1")
	require.True(t, res.Success, res.Error)
	require.True(t, res.Reconstructed)
	require.Equal(t, "R1", f.store.Get(ctx, credentials.ScopeOriginalAdmin).AccessToken)
	require.Equal(t, []string{"R1", "R1"}, bearers(f.api.callsNamed("impersonate")))
}

func TestStopImpersonation_Reconstructed(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	require.True(t, f.controller.ImpersonateUser(ctx, "u@x.com").Success)
	require.NoError(t, f.store.Clear(ctx, credentials.ScopeOriginalAdmin))

	res := f.controller.StopImpersonation(ctx)
	require.True(t, res.Success, res.Error)
	require.True(t, res.Reconstructed)
	require.Equal(t, "R1", f.store.MainToken(ctx))
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)
	require.True(t, f.controller.ImpersonateUser(ctx, "u@x.com").Success)
	f.api.logoutErr = errors.Wrapf(errors.ErrTransport, "offline")

	res := f.controller.Logout(ctx)
	require.True(t, res.Success, res.Error)
	require.Empty(t, f.store.Snapshot(ctx))
	require.Equal(t, []string{"I-u@x.com", "R1"}, bearers(f.api.callsNamed("logout")))
	require.Equal(t, "I-u@x.com-refresh,R1-refresh", joinArgs(f.api.callsNamed("logout")))
}

func TestGuard_RejectsConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	f := setupController(t)
	f.login(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.impersonate = func(_ context.Context, email string) (*apimodel.ImpersonateResponse, error) {
		close(entered)
		<-release
		return impersonateResponse(email), nil
	}

	done := make(chan impersonation.Result, 1)
	go func() { done <- f.controller.ImpersonateUser(ctx, "u@x.com") }()
	<-entered

	requireFailure(t, f.controller.StopImpersonation(ctx), errors.ErrSessionBusy)
	requireFailure(t, f.controller.ImpersonateUser(ctx, "v@x.com"), errors.ErrSessionBusy)
	requireFailure(t, f.controller.Logout(ctx), errors.ErrSessionBusy)

	close(release)
	res := <-done
	require.True(t, res.Success, res.Error)
	require.Equal(t, "u@x.com", f.machine.Snapshot(ctx).ImpersonatedUserEmail)

	// the guard is free again
	require.True(t, f.controller.StopImpersonation(ctx).Success)
}

func TestTimeout_MutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := setupController(t, impersonation.WithRequestTimeout(20*time.Millisecond))
	f.login(t)
	before := f.store.Snapshot(ctx)

	f.api.impersonate = func(ctx context.Context, _ string) (*apimodel.ImpersonateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	res := f.controller.ImpersonateUser(ctx, "u@x.com")
	requireFailure(t, res, context.DeadlineExceeded)
	require.Equal(t, before, f.store.Snapshot(ctx))
}

func TestTimeout_CoversWaitForBorrowedSlot(t *testing.T) {
	ctx := context.Background()
	f := setupController(t, impersonation.WithRequestTimeout(20*time.Millisecond))
	f.login(t)
	before := f.store.Snapshot(ctx)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.Borrow(ctx, credentials.Record{AccessToken: "B1"}, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	called := false
	f.api.impersonate = func(_ context.Context, email string) (*apimodel.ImpersonateResponse, error) {
		called = true
		return impersonateResponse(email), nil
	}
	requireFailure(t, f.controller.ImpersonateUser(ctx, "u@x.com"), context.DeadlineExceeded)
	require.False(t, called)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, before, f.store.Snapshot(ctx))
}
