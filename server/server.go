package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-identity/auth"
	"github.com/jrsteele09/go-session-identity/internal/config"
	"github.com/jrsteele09/go-session-identity/token"
	"github.com/jrsteele09/go-session-identity/token/refresh"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.AuthorizationService
	repos  auth.Repos
}

// New builds the authorization API: token managers, the authorization service,
// the bootstrap super admin, and the route table.
func New(cfg config.Config, repos auth.Repos, refreshRepo refresh.Repo) (*Server, error) {
	tokens := token.New(
		token.NewHMACSigner(cfg.GetJWTSecret()),
		token.WithIssuer(cfg.GetIssuer()),
		token.WithAccessTokenExpiry(cfg.GetAccessTokenExpiry()),
	)

	authService, err := auth.NewAuthorizationService(repos, tokens, refresh.NewManager(refreshRepo, cfg))
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create authorization service: %w", err)
	}

	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		repos:  repos,
		auth:   authService,
	}

	if err := s.InitialiseSystem(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// AuthService exposes the authorization service, mainly for housekeeping jobs.
func (s *Server) AuthService() *auth.AuthorizationService {
	return s.auth
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if colour, ok := methodColours[method]; ok {
		displayMethod = colour + paddedMethod + colourReset
	} else {
		displayMethod = colourGray + paddedMethod + colourReset
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
