package socket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
)

// SessionHandler serves the /session namespace. The handshake must carry a
// valid global access token; otherwise the peer gets an error frame and a
// policy violation close.
func (s *Server) SessionHandler() http.Handler {
	handlers := map[string]eventHandler{
		EventMe:     s.me,
		EventLogout: s.endSession,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := s.accept(w, r, NamespaceSession)
		if err != nil {
			s.logger.Debug().Err(err).Msg("socket handshake rejected")
			return
		}
		defer c.ws.CloseNow()

		account, err := s.gate.Authenticate(r.Context(), auth.Global(), gatekeeper.HandshakeToken(r))
		if err != nil {
			status := apperrors.Describe(err, s.production)
			s.push(r.Context(), c, status.Message)
			_ = c.ws.Close(websocket.StatusPolicyViolation, status.Message)
			return
		}
		c.account = account

		s.serve(gatekeeper.WithAccount(r.Context(), account), c, handlers)
	})
}

func (s *Server) me(ctx context.Context, c *conn, _ json.RawMessage) (string, any, error) {
	account, ok := gatekeeper.AccountFrom(ctx)
	if !ok {
		return "", nil, apperrors.ErrUnauthorized
	}
	return MessageAuthenticated, account, nil
}

// endSession logs the account out of the channel it logged in on. Accounts
// that signed in without a socket have no channel to end.
func (s *Server) endSession(ctx context.Context, c *conn, _ json.RawMessage) (string, any, error) {
	if c.account.SocketID == "" {
		return "", nil, apperrors.ErrNoSession
	}
	if err := s.service.Logout(ctx, auth.Global(), c.account.SocketID); err != nil {
		return "", nil, err
	}
	return MessageLoggedOut, nil, nil
}
