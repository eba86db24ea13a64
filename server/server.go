package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/ratelimit"
	"github.com/rs/zerolog"
)

// Deps holds the collaborators the HTTP transport calls into.
type Deps struct {
	Service    *auth.Service
	Gatekeeper *gatekeeper.Gatekeeper
	// Limiter is optional; without it visits are not tracked.
	Limiter    *ratelimit.Limiter
}

type mount struct {
	pattern string
	handler http.Handler
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PRODUCTION")
	production bool
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	service    *auth.Service
	gate       *gatekeeper.Gatekeeper
	limiter    *ratelimit.Limiter
	mounts     []mount
	logger     zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHandler mounts an extra handler, such as the socket or GraphQL
// endpoint, behind the API middleware.
func WithHandler(pattern string, handler http.Handler) Option {
	return func(s *Server) {
		s.mounts = append(s.mounts, mount{pattern: pattern, handler: handler})
	}
}

func New(config config.Config, deps Deps, options ...Option) (*Server, error) {
	if config == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if deps.Service == nil {
		return nil, errors.New("[server.New] Service is required")
	}
	if deps.Gatekeeper == nil {
		return nil, errors.New("[server.New] Gatekeeper is required")
	}

	s := &Server{
		env:        config.GetEnv(),
		production: config.IsProduction(),
		mux:        http.NewServeMux(),
		config:     config,
		service:    deps.Service,
		gate:       deps.Gatekeeper,
		limiter:    deps.Limiter,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if !config.GetTrackSiteVisit() {
		s.limiter = nil
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

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDevelopment {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.logRoute(method, path)
	}
}

func (s *Server) logRoute(method, path string) {
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	displayMethod := color + fmt.Sprintf(" %-7s", method) + ResetColor
	s.logger.Debug().Msgf("[%-19s] %s", displayMethod, path)
}
