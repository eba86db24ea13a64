package server

import (
	"net/http"

	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
)

// scopeFunc picks the scope a handler runs in. It reports false when the
// request carries no usable scope.
type scopeFunc func(r *http.Request) (auth.Scope, bool)

// organizationScope is the tenant named by the organization OrganizationAuth
// put on the request.
func organizationScope(r *http.Request) (auth.Scope, bool) {
	organization, ok := gatekeeper.OrganizationFrom(r.Context())
	if !ok {
		return auth.Scope{}, false
	}
	return auth.Tenant(organization.ID), true
}

// RequireAccount authenticates the bearer token against the global store.
func (s *Server) RequireAccount() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			account, err := s.gate.Authenticate(r.Context(), auth.Global(), gatekeeper.BearerToken(r))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			next(w, r.WithContext(gatekeeper.WithAccount(r.Context(), account)))
		}
	}
}

// OrganizationAuth authenticates the caller's global token. The account it
// resolves to is the organization, and its id is the tenant id of the
// routes behind it.
func (s *Server) OrganizationAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			organization, err := s.gate.Authenticate(r.Context(), auth.Global(), gatekeeper.BearerToken(r))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			next(w, r.WithContext(gatekeeper.WithOrganization(r.Context(), organization)))
		}
	}
}

// RequireTenantAccount authenticates the tenant token in
// X-Tenant-Access-Token against the organization's store. It must run after
// OrganizationAuth.
func (s *Server) RequireTenantAccount() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope, ok := organizationScope(r)
			if !ok {
				s.writeError(w, r, errMissingOrganization)
				return
			}
			account, err := s.gate.Authenticate(r.Context(), scope, gatekeeper.TenantToken(r))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			next(w, r.WithContext(gatekeeper.WithAccount(r.Context(), account)))
		}
	}
}
