package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthLogin    = "/api/auth/login"
	RouteAuthRegister = "/api/auth/register"
	RouteAuthRefresh  = "/api/auth/refresh"
	RouteAuthLogout   = "/api/auth/logout"
	RouteAuthMe       = "/api/auth/me"

	// Super Admin Routes
	RouteSuperAdminImpersonate = "/api/superadmin/impersonate"
	RouteSuperAdminUser        = "/api/superadmin/users/{id}"

	// Restaurant Routes
	RouteRestaurantMine = "/api/restaurants/mine"

	// Health
	RouteHealth = "/healthz"
)
