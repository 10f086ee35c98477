package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/internal/utils"
	"github.com/jrsteele09/go-session-identity/restaurants"
	"github.com/jrsteele09/go-session-identity/token"
	"github.com/jrsteele09/go-session-identity/token/refresh"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/rs/zerolog/log"
)

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Users       users.UserRepo   // Repository for user data
	Restaurants restaurants.Repo // Repository for restaurant data
}

// AuthorizationService implements the authorization API consumed by the session manager:
// login, registration, impersonation and the lookups made around it.
type AuthorizationService struct {
	repos     Repos
	tokens    *token.Manager
	refresh   *refresh.Manager
	validator *Validator
	nowTime   func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	repos Repos,
	tokens *token.Manager,
	refreshTokens *refresh.Manager,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if repos.Restaurants == nil {
		return nil, errors.New("[NewAuthorizationService] Restaurants repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewAuthorizationService] token manager is required")
	}
	if refreshTokens == nil {
		return nil, errors.New("[NewAuthorizationService] refresh token manager is required")
	}

	as := &AuthorizationService{
		repos:     repos,
		tokens:    tokens,
		refresh:   refreshTokens,
		validator: NewValidator(),
		nowTime:   time.Now,
	}

	for _, opt := range options {
		opt(as)
	}

	return as, nil
}

// Login checks the credentials and issues a token pair.
func (as *AuthorizationService) Login(req apimodel.LoginRequest) (*apimodel.TokenResponse, error) {
	if err := as.validator.ValidateLogin(req); err != nil {
		return nil, err
	}

	user, err := as.repos.Users.GetByEmail(req.Email)
	if err != nil {
		// Do not reveal which of email or password was wrong
		return nil, UserPasswordsDontMatchErr
	}
	if !users.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, UserPasswordsDontMatchErr
	}
	if user.Blocked {
		return nil, UserBlockedErr
	}

	return as.issue(user, nil)
}

// Register creates a new user, optionally with their own restaurant, and logs them in.
func (as *AuthorizationService) Register(req apimodel.RegisterRequest) (*apimodel.TokenResponse, error) {
	if err := as.validator.ValidateRegistration(req); err != nil {
		return nil, err
	}
	if _, err := as.repos.Users.GetByEmail(req.Email); err == nil {
		return nil, UserExistsErr
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrapf(err, "[AuthorizationService.Register] HashPassword")
	}

	now := as.nowTime()
	user := &users.User{
		Email:        users.NormaliseEmail(req.Email),
		Username:     strings.SplitN(users.NormaliseEmail(req.Email), "@", 2)[0],
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		DateJoined:   now,
	}
	if err := as.repos.Users.Upsert(user); err != nil {
		return nil, errors.Wrapf(err, "[AuthorizationService.Register] Users.Upsert")
	}

	if name := strings.TrimSpace(req.RestaurantName); name != "" {
		restaurant := &restaurants.Restaurant{Name: name, OwnerID: user.ID, CreatedAt: now}
		if err := as.repos.Restaurants.Upsert(restaurant); err != nil {
			return nil, errors.Wrapf(err, "[AuthorizationService.Register] Restaurants.Upsert")
		}
		user.Restaurants = append(user.Restaurants, users.RestaurantMembership{
			RestaurantID: restaurant.ID,
			Roles:        []users.RoleType{users.RoleRestaurantOwner},
			JoinedAt:     now,
		})
		if err := as.repos.Users.Upsert(user); err != nil {
			return nil, errors.Wrapf(err, "[AuthorizationService.Register] Users.Upsert membership")
		}
	}

	log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("user registered")
	return as.issue(user, nil)
}

// Refresh rotates a refresh token and issues a new token pair for the same subject.
// Impersonation refresh tokens stay impersonation tokens.
func (as *AuthorizationService) Refresh(req apimodel.RefreshRequest) (*apimodel.TokenResponse, error) {
	rt, err := as.refresh.Consume(req.Refresh)
	if err != nil {
		return nil, err
	}
	user, err := as.activeUser(rt.UserID)
	if err != nil {
		return nil, err
	}

	var impersonator *users.User
	if rt.ImpersonatorID != "" {
		if impersonator, err = as.activeUser(rt.ImpersonatorID); err != nil {
			return nil, err
		}
		if !impersonator.IsSuperAdmin() {
			return nil, errors.Wrapf(errors.ErrForbidden, "impersonator lost super admin role")
		}
	}
	return as.issue(user, impersonator)
}

// Logout revokes the presented access token and, when given, its refresh token.
func (as *AuthorizationService) Logout(claims *token.Claims, refreshToken string) error {
	if refreshToken != "" {
		if err := as.refresh.Delete(refreshToken); err != nil {
			log.Debug().Err(err).Msg("logout: refresh token already gone")
		}
	}
	return as.tokens.Revoke(claims)
}

// Impersonate issues an impersonation token pair for the user with the given email.
// The caller must be an active super admin and must not itself be impersonating.
func (as *AuthorizationService) Impersonate(caller *token.Claims, email string) (*apimodel.ImpersonateResponse, error) {
	if caller.IsImpersonated() {
		return nil, errors.Wrapf(errors.ErrForbidden, "[AuthorizationService.Impersonate] cannot impersonate while impersonating")
	}
	admin, err := as.activeUser(caller.Subject)
	if err != nil {
		return nil, err
	}
	target, err := as.repos.Users.GetByEmail(email)
	if err != nil {
		return nil, UserNotFoundErr
	}
	if err := as.validator.ValidateImpersonationTarget(admin, target); err != nil {
		return nil, err
	}

	tr, err := as.issue(target, admin)
	if err != nil {
		return nil, err
	}

	var simulation *bool
	if primary := target.PrimaryRestaurantID(); primary != "" {
		if r, err := as.repos.Restaurants.Get(primary); err == nil {
			simulation = utils.Ptr(r.Simulated)
		}
	} else {
		simulation = utils.Ptr(false)
	}

	log.Info().Str("admin", admin.Email).Str("target", target.Email).Msg("impersonation started")
	return &apimodel.ImpersonateResponse{
		ImpersonatedUser:     tr.User,
		Access:               tr.Access,
		Refresh:              tr.Refresh,
		Message:              fmt.Sprintf("You are now impersonating %s", target.DisplayName()),
		RestaurantSimulation: simulation,
	}, nil
}

// LookupUser returns a user by ID. Only super admins may look up other users.
func (as *AuthorizationService) LookupUser(caller *token.Claims, userID string) (*users.User, error) {
	if caller.Subject != userID && !caller.HasRole(users.RoleSuperAdmin) {
		return nil, errors.Wrapf(errors.ErrForbidden, "[AuthorizationService.LookupUser] super admin role required")
	}
	user, err := as.repos.Users.GetByID(userID)
	if err != nil {
		return nil, UserNotFoundErr
	}
	return user, nil
}

// Me returns the user the token was issued to.
func (as *AuthorizationService) Me(caller *token.Claims) (*users.User, error) {
	return as.activeUser(caller.Subject)
}

// PrimaryRestaurant returns the caller's primary restaurant.
func (as *AuthorizationService) PrimaryRestaurant(caller *token.Claims) (*apimodel.RestaurantResponse, error) {
	user, err := as.activeUser(caller.Subject)
	if err != nil {
		return nil, err
	}
	primary := user.PrimaryRestaurantID()
	if primary == "" {
		return nil, errors.Wrapf(errors.ErrNotFound, "[AuthorizationService.PrimaryRestaurant] user has no restaurant")
	}
	r, err := as.repos.Restaurants.Get(primary)
	if err != nil {
		return nil, errors.Wrapf(err, "[AuthorizationService.PrimaryRestaurant] Restaurants.Get")
	}
	return &apimodel.RestaurantResponse{RestaurantID: r.ID, Name: r.Name, Simulated: r.Simulated}, nil
}

// Introspect validates a bearer token for the HTTP middleware
func (as *AuthorizationService) Introspect(rawToken string) (*token.Claims, error) {
	return as.tokens.Parse(rawToken)
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (as *AuthorizationService) CleanupRevokedTokens() {
	as.tokens.CleanupRevokedTokens()
}

func (as *AuthorizationService) activeUser(userID string) (*users.User, error) {
	user, err := as.repos.Users.GetByID(userID)
	if err != nil {
		return nil, UserNotFoundErr
	}
	if user.Blocked {
		return nil, UserBlockedErr
	}
	return user, nil
}

func (as *AuthorizationService) issue(user, impersonator *users.User) (*apimodel.TokenResponse, error) {
	access, err := as.tokens.CreateAccessToken(user, impersonator)
	if err != nil {
		return nil, errors.Wrapf(err, "[AuthorizationService.issue] CreateAccessToken")
	}

	var impersonatorID string
	if impersonator != nil {
		impersonatorID = impersonator.ID
	}
	refreshToken, err := as.refresh.Create(user.ID, impersonatorID)
	if err != nil {
		return nil, errors.Wrapf(err, "[AuthorizationService.issue] refresh.Create")
	}

	return &apimodel.TokenResponse{
		Access:  access,
		Refresh: refreshToken,
		User:    user,
	}, nil
}
