package auth_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/auth"
	"github.com/jrsteele09/go-session-identity/internal/config"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/restaurants"
	restaurantrepofakes "github.com/jrsteele09/go-session-identity/restaurants/repofakes"
	"github.com/jrsteele09/go-session-identity/token"
	"github.com/jrsteele09/go-session-identity/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-session-identity/token/refresh/repofake"
	"github.com/jrsteele09/go-session-identity/users"
	fakeuserrepo "github.com/jrsteele09/go-session-identity/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	ownerEmail    = "owner@example.com"
	staffEmail    = "staff@example.com"
	testPassword  = "Password123"
	testJWTSecret = "test-secret"
	testIssuer    = "https://auth.example.com"
)

type testFixture struct {
	userRepo       users.UserRepo
	restaurantRepo restaurants.Repo
	tokens         *token.Manager
	service        *auth.AuthorizationService
}

func setupTestFixture(t *testing.T, opts ...auth.AuthorizationServiceOption) *testFixture {
	t.Helper()

	ur := fakeuserrepo.NewFakeUserRepo()
	rr := restaurantrepofakes.NewFakeRestaurantRepo()
	tokens := token.New(token.NewHMACSigner(testJWTSecret), token.WithIssuer(testIssuer))

	service, err := auth.NewAuthorizationService(
		auth.Repos{Users: ur, Restaurants: rr},
		tokens,
		refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), config.Security{}),
		opts...,
	)
	require.NoError(t, err)

	return &testFixture{
		userRepo:       ur,
		restaurantRepo: rr,
		tokens:         tokens,
		service:        service,
	}
}

// createTestUser stores a user with testPassword and returns it with its assigned ID
func (f *testFixture) createTestUser(t *testing.T, email string, roles ...users.RoleType) *users.User {
	t.Helper()

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)

	u := &users.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		SystemRoles:  roles,
	}
	require.NoError(t, f.userRepo.Upsert(u))
	return u
}

// createRestaurantFor makes a restaurant and adds the user as its owner
func (f *testFixture) createRestaurantFor(t *testing.T, u *users.User, name string, simulated bool) *restaurants.Restaurant {
	t.Helper()

	r := &restaurants.Restaurant{Name: name, OwnerID: u.ID, Simulated: simulated, CreatedAt: time.Now()}
	require.NoError(t, f.restaurantRepo.Upsert(r))

	u.Restaurants = append(u.Restaurants, users.RestaurantMembership{
		RestaurantID: r.ID,
		Roles:        []users.RoleType{users.RoleRestaurantOwner},
		JoinedAt:     time.Now(),
	})
	require.NoError(t, f.userRepo.Upsert(u))
	return r
}

func (f *testFixture) loginClaims(t *testing.T, email string) (*apimodel.TokenResponse, *token.Claims) {
	t.Helper()

	resp, err := f.service.Login(apimodel.LoginRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	claims, err := f.service.Introspect(resp.Access)
	require.NoError(t, err)
	return resp, claims
}

func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)
	u := f.createTestUser(t, ownerEmail)

	resp, err := f.service.Login(apimodel.LoginRequest{Email: "  Owner@Example.com ", Password: testPassword})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Access)
	require.NotEmpty(t, resp.Refresh)
	require.Equal(t, u.ID, resp.User.ID)

	claims, err := f.service.Introspect(resp.Access)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, ownerEmail, claims.Email)
	require.False(t, claims.IsImpersonated())
}

func TestLogin_InvalidPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, ownerEmail)

	_, err := f.service.Login(apimodel.LoginRequest{Email: ownerEmail, Password: "Wrong12345"})
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestLogin_UnknownUserLooksLikeBadPassword(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(apimodel.LoginRequest{Email: "nobody@example.com", Password: testPassword})
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestLogin_BlockedUser(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, ownerEmail)
	require.NoError(t, f.userRepo.SetBlocked(ownerEmail, true))

	_, err := f.service.Login(apimodel.LoginRequest{Email: ownerEmail, Password: testPassword})
	require.ErrorIs(t, err, errors.ErrForbidden)
}

func TestLogin_MissingFields(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(apimodel.LoginRequest{Email: ownerEmail})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestRegister_CreatesRestaurant(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.service.Register(apimodel.RegisterRequest{
		Email:          "New@Example.com",
		Password:       testPassword,
		FirstName:      "Nina",
		LastName:       "New",
		RestaurantName: "Nina's Noodles",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Access)
	require.Equal(t, "new@example.com", resp.User.Email)
	require.Equal(t, "new", resp.User.Username)
	require.Len(t, resp.User.Restaurants, 1)

	r, err := f.restaurantRepo.Get(resp.User.PrimaryRestaurantID())
	require.NoError(t, err)
	require.Equal(t, "Nina's Noodles", r.Name)
	require.Equal(t, resp.User.ID, r.OwnerID)
}

func TestRegister_WithoutRestaurant(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.service.Register(apimodel.RegisterRequest{Email: staffEmail, Password: testPassword})
	require.NoError(t, err)
	require.Empty(t, resp.User.Restaurants)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, ownerEmail)

	_, err := f.service.Register(apimodel.RegisterRequest{Email: ownerEmail, Password: testPassword})
	require.ErrorIs(t, err, errors.ErrUserExists)
}

func TestRegister_WeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Register(apimodel.RegisterRequest{Email: ownerEmail, Password: "weak"})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, ownerEmail)
	login, _ := f.loginClaims(t, ownerEmail)

	rotated, err := f.service.Refresh(apimodel.RefreshRequest{Refresh: login.Refresh})
	require.NoError(t, err)
	require.NotEqual(t, login.Refresh, rotated.Refresh)

	_, err = f.service.Refresh(apimodel.RefreshRequest{Refresh: login.Refresh})
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)
}

func TestRefresh_KeepsImpersonation(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, adminEmail, users.RoleSuperAdmin)
	f.createTestUser(t, ownerEmail)
	_, adminClaims := f.loginClaims(t, adminEmail)

	imp, err := f.service.Impersonate(adminClaims, ownerEmail)
	require.NoError(t, err)

	rotated, err := f.service.Refresh(apimodel.RefreshRequest{Refresh: imp.Refresh})
	require.NoError(t, err)
	claims, err := f.service.Introspect(rotated.Access)
	require.NoError(t, err)
	require.Equal(t, adminClaims.Subject, claims.Impersonator)
}

func TestLogout_RevokesAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, ownerEmail)
	login, claims := f.loginClaims(t, ownerEmail)

	require.NoError(t, f.service.Logout(claims, login.Refresh))

	_, err := f.service.Introspect(login.Access)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
	_, err = f.service.Refresh(apimodel.RefreshRequest{Refresh: login.Refresh})
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)
}

func TestImpersonate_Success(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.createTestUser(t, adminEmail, users.RoleSuperAdmin)
	owner := f.createTestUser(t, ownerEmail)
	_, adminClaims := f.loginClaims(t, adminEmail)

	resp, err := f.service.Impersonate(adminClaims, ownerEmail)
	require.NoError(t, err)
	require.NoError(t, resp.Validate())
	require.Equal(t, owner.ID, resp.ImpersonatedUser.ID)
	require.Equal(t, "You are now impersonating Test User", resp.Message)
	require.NotNil(t, resp.RestaurantSimulation)
	require.False(t, *resp.RestaurantSimulation)

	claims, err := f.service.Introspect(resp.Access)
	require.NoError(t, err)
	require.Equal(t, owner.ID, claims.Subject)
	require.Equal(t, admin.ID, claims.Impersonator)
}

func TestImpersonate_ReportsSimulatedRestaurant(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, adminEmail, users.RoleSuperAdmin)
	owner := f.createTestUser(t, ownerEmail)
	f.createRestaurantFor(t, owner, "Demo Diner", true)
	_, adminClaims := f.loginClaims(t, adminEmail)

	resp, err := f.service.Impersonate(adminClaims, ownerEmail)
	require.NoError(t, err)
	require.NotNil(t, resp.RestaurantSimulation)
	require.True(t, *resp.RestaurantSimulation)
}

func TestImpersonate_Rejections(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, adminEmail, users.RoleSuperAdmin)
	f.createTestUser(t, "other-admin@example.com", users.RoleSuperAdmin)
	f.createTestUser(t, ownerEmail)
	f.createTestUser(t, staffEmail)
	_, adminClaims := f.loginClaims(t, adminEmail)
	_, ownerClaims := f.loginClaims(t, ownerEmail)

	t.Run("caller is not a super admin", func(t *testing.T) {
		_, err := f.service.Impersonate(ownerClaims, staffEmail)
		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("target is a super admin", func(t *testing.T) {
		_, err := f.service.Impersonate(adminClaims, "other-admin@example.com")
		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("target is the caller", func(t *testing.T) {
		_, err := f.service.Impersonate(adminClaims, adminEmail)
		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := f.service.Impersonate(adminClaims, "ghost@example.com")
		require.ErrorIs(t, err, errors.ErrUserNotFound)
	})

	t.Run("caller is already impersonating", func(t *testing.T) {
		resp, err := f.service.Impersonate(adminClaims, ownerEmail)
		require.NoError(t, err)
		impClaims, err := f.service.Introspect(resp.Access)
		require.NoError(t, err)

		_, err = f.service.Impersonate(impClaims, staffEmail)
		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("blocked target", func(t *testing.T) {
		require.NoError(t, f.userRepo.SetBlocked(staffEmail, true))
		_, err := f.service.Impersonate(adminClaims, staffEmail)
		require.ErrorIs(t, err, errors.ErrForbidden)
	})
}

func TestLookupUser(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, adminEmail, users.RoleSuperAdmin)
	owner := f.createTestUser(t, ownerEmail)
	staff := f.createTestUser(t, staffEmail)
	_, adminClaims := f.loginClaims(t, adminEmail)
	_, ownerClaims := f.loginClaims(t, ownerEmail)

	u, err := f.service.LookupUser(adminClaims, staff.ID)
	require.NoError(t, err)
	require.Equal(t, staffEmail, u.Email)

	u, err = f.service.LookupUser(ownerClaims, owner.ID)
	require.NoError(t, err)
	require.Equal(t, ownerEmail, u.Email)

	_, err = f.service.LookupUser(ownerClaims, staff.ID)
	require.ErrorIs(t, err, errors.ErrForbidden)

	_, err = f.service.LookupUser(adminClaims, "missing")
	require.ErrorIs(t, err, errors.ErrUserNotFound)
}

func TestPrimaryRestaurant(t *testing.T) {
	f := setupTestFixture(t)
	owner := f.createTestUser(t, ownerEmail)
	f.createTestUser(t, staffEmail)
	r := f.createRestaurantFor(t, owner, "Bistro", false)
	_, ownerClaims := f.loginClaims(t, ownerEmail)
	_, staffClaims := f.loginClaims(t, staffEmail)

	resp, err := f.service.PrimaryRestaurant(ownerClaims)
	require.NoError(t, err)
	require.Equal(t, r.ID, resp.RestaurantID)
	require.Equal(t, "Bistro", resp.Name)

	_, err = f.service.PrimaryRestaurant(staffClaims)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMe_BlockedAfterLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, ownerEmail)
	_, claims := f.loginClaims(t, ownerEmail)

	u, err := f.service.Me(claims)
	require.NoError(t, err)
	require.Equal(t, ownerEmail, u.Email)

	require.NoError(t, f.userRepo.SetBlocked(ownerEmail, true))
	_, err = f.service.Me(claims)
	require.ErrorIs(t, err, errors.ErrForbidden)
}

func TestNewAuthorizationService_MissingDependencies(t *testing.T) {
	ur := fakeuserrepo.NewFakeUserRepo()
	rr := restaurantrepofakes.NewFakeRestaurantRepo()
	tokens := token.New(token.NewHMACSigner(testJWTSecret))
	rm := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), config.Security{})

	tests := []struct {
		name    string
		repos   auth.Repos
		tokens  *token.Manager
		refresh *refresh.Manager
		errMsg  string
	}{
		{"missing users", auth.Repos{Restaurants: rr}, tokens, rm, "Users repo is required"},
		{"missing restaurants", auth.Repos{Users: ur}, tokens, rm, "Restaurants repo is required"},
		{"missing token manager", auth.Repos{Users: ur, Restaurants: rr}, nil, rm, "token manager is required"},
		{"missing refresh manager", auth.Repos{Users: ur, Restaurants: rr}, tokens, nil, "refresh token manager is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewAuthorizationService(tt.repos, tt.tokens, tt.refresh)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWithNowTime(t *testing.T) {
	fixedTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, auth.WithNowTime(func() time.Time { return fixedTime }))

	resp, err := f.service.Register(apimodel.RegisterRequest{Email: ownerEmail, Password: testPassword, RestaurantName: "Cafe"})
	require.NoError(t, err)
	require.Equal(t, fixedTime, resp.User.DateJoined)
	require.Equal(t, fixedTime, resp.User.Restaurants[0].JoinedAt)
}
