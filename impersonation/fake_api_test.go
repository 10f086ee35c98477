package impersonation_test

import (
	"context"
	"strings"
	"sync"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/credentials"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/users"
)

type apiCall struct {
	name   string
	bearer string // main slot at the moment of the call
	arg    string
}

// fakeAPI stands in for the authorization API. Authorised calls record the
// store's main slot the way the real bearer transport reads it.
type fakeAPI struct {
	mu    sync.Mutex
	store *credentials.Store
	calls []apiCall

	loginResp *apimodel.TokenResponse
	loginErr  error

	impersonate func(ctx context.Context, email string) (*apimodel.ImpersonateResponse, error)
	usersByID   map[string]*users.User

	restaurant    *apimodel.RestaurantResponse
	restaurantErr error

	logoutErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		loginResp: &apimodel.TokenResponse{
			Access:  "R1",
			Refresh: "R1-refresh",
			User:    &users.User{ID: "admin", Email: "admin@example.com", SystemRoles: []users.RoleType{users.RoleSuperAdmin}},
		},
		impersonate: func(_ context.Context, email string) (*apimodel.ImpersonateResponse, error) {
			return impersonateResponse(email), nil
		},
		usersByID: map[string]*users.User{
			"u1": {ID: "u1", Email: "u@x.com"},
			"v1": {ID: "v1", Email: "v@x.com"},
		},
		restaurant: &apimodel.RestaurantResponse{RestaurantID: "rest-fetched"},
	}
}

// impersonateResponse builds a successful response whose access token is derived from the email
func impersonateResponse(email string) *apimodel.ImpersonateResponse {
	return &apimodel.ImpersonateResponse{
		ImpersonatedUser: &users.User{ID: "id-" + email, Email: email},
		Access:           "I-" + email,
		Refresh:          "I-" + email + "-refresh",
		Message:          "You are now impersonating " + email,
	}
}

func (f *fakeAPI) record(ctx context.Context, name, arg string, authorised bool) {
	bearer := ""
	if authorised {
		bearer = f.store.MainToken(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{name: name, bearer: bearer, arg: arg})
}

func (f *fakeAPI) callsNamed(name string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) Login(ctx context.Context, email, _ string) (*apimodel.TokenResponse, error) {
	f.record(ctx, "login", email, false)
	return f.loginResp, f.loginErr
}

func (f *fakeAPI) Register(ctx context.Context, req apimodel.RegisterRequest) (*apimodel.TokenResponse, error) {
	f.record(ctx, "register", req.Email, false)
	return &apimodel.TokenResponse{
		Access: "N1",
		User:   &users.User{ID: "new", Email: req.Email, Restaurants: []users.RestaurantMembership{{RestaurantID: "rest-new"}}},
	}, nil
}

func (f *fakeAPI) Logout(ctx context.Context, refreshToken string) error {
	f.record(ctx, "logout", refreshToken, true)
	return f.logoutErr
}

func (f *fakeAPI) Impersonate(ctx context.Context, email string) (*apimodel.ImpersonateResponse, error) {
	f.record(ctx, "impersonate", email, true)
	return f.impersonate(ctx, email)
}

func (f *fakeAPI) LookupUser(ctx context.Context, userID string) (*users.User, error) {
	f.record(ctx, "lookup", userID, true)
	u, ok := f.usersByID[userID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrAuthCallFailure, "user not found")
	}
	return u, nil
}

func (f *fakeAPI) PrimaryRestaurant(ctx context.Context) (*apimodel.RestaurantResponse, error) {
	f.record(ctx, "restaurant", "", true)
	return f.restaurant, f.restaurantErr
}

func bearers(calls []apiCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.bearer)
	}
	return out
}

func joinArgs(calls []apiCall) string {
	args := make([]string, 0, len(calls))
	for _, c := range calls {
		args = append(args, c.arg)
	}
	return strings.Join(args, ",")
}
