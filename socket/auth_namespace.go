package socket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jrsteele09/go-tenant-auth/auth"
)

// AuthHandler serves the /auth namespace. The connection id is the channel
// a login marks the account online on, and closing the connection logs that
// account out again.
func (s *Server) AuthHandler() http.Handler {
	handlers := map[string]eventHandler{
		EventRegister:     s.register,
		EventLogin:        s.login,
		EventRefreshToken: s.refreshToken,
		EventLogout:       s.logout,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := s.accept(w, r, NamespaceAuth)
		if err != nil {
			s.logger.Debug().Err(err).Msg("socket handshake rejected")
			return
		}
		defer c.ws.CloseNow()
		defer s.disconnect(r.Context(), c)

		s.serve(r.Context(), c, handlers)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	})
}

func (s *Server) register(ctx context.Context, _ *conn, data json.RawMessage) (string, any, error) {
	var req auth.RegisterRequest
	if err := decode(data, &req); err != nil {
		return "", nil, err
	}
	account, err := s.service.Register(ctx, auth.Global(), req)
	if err != nil {
		return "", nil, err
	}
	return MessageRegistered, account, nil
}

func (s *Server) login(ctx context.Context, c *conn, data json.RawMessage) (string, any, error) {
	var req auth.LoginRequest
	if err := decode(data, &req); err != nil {
		return "", nil, err
	}
	result, err := s.service.Login(ctx, auth.Global(), req, c.id)
	if err != nil {
		return "", nil, err
	}
	c.tokens = result
	return MessageLoggedIn, result, nil
}

// refreshToken falls back to the refresh token from this connection's login
// when the event carries none.
func (s *Server) refreshToken(ctx context.Context, c *conn, data json.RawMessage) (string, any, error) {
	var req auth.RefreshRequest
	if err := decode(data, &req); err != nil {
		return "", nil, err
	}
	if req.RefreshTokenOld == "" && c.tokens != nil {
		req.RefreshTokenOld = c.tokens.RefreshToken
	}
	pair, err := s.service.RefreshTokens(ctx, auth.Global(), req)
	if err != nil {
		return "", nil, err
	}
	if c.tokens != nil {
		c.tokens.AccessToken = pair.AccessToken
		c.tokens.RefreshToken = pair.RefreshToken
	}
	return MessageTokenRefreshed, pair, nil
}

func (s *Server) logout(ctx context.Context, c *conn, _ json.RawMessage) (string, any, error) {
	if err := s.service.Logout(ctx, auth.Global(), c.id); err != nil {
		return "", nil, err
	}
	c.tokens = nil
	return MessageLoggedOut, nil, nil
}

// disconnect marks the account that logged in on c offline. It runs after the
// request context may already be done.
func (s *Server) disconnect(ctx context.Context, c *conn) {
	if c.tokens == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	if err := s.service.Logout(ctx, auth.Global(), c.id); err != nil {
		c.logger.Error().Err(err).Msg("failed to log out disconnected socket")
		return
	}
	c.logger.Debug().Msg("socket disconnected, account logged out")
}
