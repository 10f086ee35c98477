package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Public auth routes
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))

	// Authenticated routes
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteRestaurantMine, ChainMiddleware(s.PrimaryRestaurantHandler(), s.APIMiddleware(s.RequireAuth())...))

	// Super admin routes
	s.RegisterRouteHandler("POST "+RouteSuperAdminImpersonate, ChainMiddleware(s.ImpersonateHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireSuperAdmin())...))
	s.RegisterRouteHandler("GET "+RouteSuperAdminUser, ChainMiddleware(s.LookupUserHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireSuperAdmin())...))

	// CORS preflight for every API route
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
}
