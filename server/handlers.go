package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
)

var errMissingOrganization = fmt.Errorf("%w: organization is not authenticated", apperrors.ErrUnauthorized)

func (s *Server) scope(w http.ResponseWriter, r *http.Request, scopeOf scopeFunc) (auth.Scope, bool) {
	scope, ok := scopeOf(r)
	if !ok {
		s.writeError(w, r, errMissingOrganization)
	}
	return scope, ok
}

func (s *Server) RegisterHandler(scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := s.scope(w, r, scopeOf)
		if !ok {
			return
		}
		var req auth.RegisterRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		account, err := s.service.Register(r.Context(), scope, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeResult(w, MessageRegistered, account)
	}
}

func (s *Server) LoginHandler(scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := s.scope(w, r, scopeOf)
		if !ok {
			return
		}
		var req auth.LoginRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.service.Login(r.Context(), scope, req, "")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeResult(w, MessageLoggedIn, result)
	}
}

func (s *Server) RefreshTokenHandler(scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := s.scope(w, r, scopeOf)
		if !ok {
			return
		}
		var req auth.RefreshRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		pair, err := s.service.RefreshTokens(r.Context(), scope, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeResult(w, MessageTokenRefreshed, pair)
	}
}

func (s *Server) LoginLinkHandler(scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := s.scope(w, r, scopeOf)
		if !ok {
			return
		}
		link, err := s.service.LoginLink(scope)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeResult(w, MessageLinkGenerated, map[string]string{"link": link})
	}
}

// CallbackHandler finishes the provider flow. The scope comes from the signed
// state, so the same handler serves both callback routes.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		result, err := s.service.ProviderCallback(r.Context(), auth.CallbackRequest{
			Code:  query.Get("code"),
			State: query.Get("state"),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeResult(w, MessageAuthenticated, result)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := gatekeeper.AccountFrom(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.ErrUnauthorized)
			return
		}
		writeResult(w, MessageAuthenticated, account)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// PreflightHandler answers OPTIONS requests that CorsMiddleware did not
// already answer.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
