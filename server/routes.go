package server

import (
	"net/http"

	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	global := func(*http.Request) (auth.Scope, bool) { return auth.Global(), true }

	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(global), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(global), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRefreshToken, ChainMiddleware(s.RefreshTokenHandler(global), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuth0Link, ChainMiddleware(s.LoginLinkHandler(global), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuth0Return, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAccount())...))

	// Organization routes run in the tenant named by the caller's global account.
	org := s.APIMiddleware(s.OrganizationAuth())
	s.RegisterRouteHandler("POST "+RouteOrgRegister, ChainMiddleware(s.RegisterHandler(organizationScope), org...))
	s.RegisterRouteHandler("POST "+RouteOrgLogin, ChainMiddleware(s.LoginHandler(organizationScope), org...))
	s.RegisterRouteHandler("POST "+RouteOrgRefreshToken, ChainMiddleware(s.RefreshTokenHandler(organizationScope), org...))
	s.RegisterRouteHandler("GET "+RouteOrgAuth0Link, ChainMiddleware(s.LoginLinkHandler(organizationScope), org...))
	s.RegisterRouteHandler("GET "+RouteOrgAuth0Return, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOrgMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.OrganizationAuth(), s.RequireTenantAccount())...))

	// Preflight requests never reach the method specific routes above.
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())

	for _, m := range s.mounts {
		s.RegisterRouteHandler(m.pattern, ChainMiddleware(m.handler.ServeHTTP, s.APIMiddleware()...))
	}
}
