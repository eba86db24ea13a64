// Package socket serves the realtime namespaces over websockets. /auth takes
// unauthenticated credential events; /session requires a valid access token
// on the handshake.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	NamespaceAuth    = "/auth"
	NamespaceSession = "/session"

	readLimit     = 64 << 10
	writeTimeout  = 5 * time.Second
	logoutTimeout = 5 * time.Second
)

type Server struct {
	service        *auth.Service
	gate           *gatekeeper.Gatekeeper
	logger         zerolog.Logger
	production     bool
	originPatterns []string
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProduction hides internal error text from clients.
func WithProduction(production bool) Option {
	return func(s *Server) {
		s.production = production
	}
}

// WithOriginPatterns allows cross origin handshakes from hosts matching
// patterns, as understood by websocket.AcceptOptions.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = append(s.originPatterns, patterns...)
	}
}

func New(service *auth.Service, gate *gatekeeper.Gatekeeper, options ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("[socket.New] service is required")
	}
	if gate == nil {
		return nil, errors.New("[socket.New] gatekeeper is required")
	}
	s := &Server{
		service: service,
		gate:    gate,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// conn is one accepted connection. Events on a connection are handled one at
// a time, so its fields need no locking.
type conn struct {
	id        string
	namespace string
	ws        *websocket.Conn
	logger    zerolog.Logger

	// set on /auth after login
	tokens  *auth.LoginResult
	// set on /session by the handshake
	account *accounts.Account
}

type eventHandler func(ctx context.Context, c *conn, data json.RawMessage) (message string, result any, err error)

func (s *Server) accept(w http.ResponseWriter, r *http.Request, namespace string) (*conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(readLimit)
	id := uuid.NewString()
	return &conn{
		id:        id,
		namespace: namespace,
		ws:        ws,
		logger:    s.logger.With().Str("namespace", namespace).Str("connection", id).Logger(),
	}, nil
}

// serve reads events until the peer goes away. Every failure is answered on
// the socket; nothing escapes the loop.
func (s *Server) serve(ctx context.Context, c *conn, handlers map[string]eventHandler) {
	gauge := metrics.SocketConnections.WithLabelValues(c.namespace)
	gauge.Inc()
	defer gauge.Dec()
	c.logger.Debug().Msg("socket connected")

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.logger.Debug().Err(err).Msg("socket read ended")
			}
			return
		}

		var in Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &in) != nil || in.Event == "" {
			s.push(ctx, c, MessageInvalidFrame)
			continue
		}
		c.logger.Info().Str("event", in.Event).Msg("socket event")

		handler, ok := handlers[in.Event]
		if !ok {
			s.ack(ctx, c, in.ID, "", nil, errUnknownEvent)
			continue
		}
		message, result, err := handler(ctx, c, in.Data)
		s.ack(ctx, c, in.ID, message, result, err)
		if in.Event == EventLogout && c.namespace == NamespaceSession && err == nil {
			_ = c.ws.Close(websocket.StatusNormalClosure, MessageLoggedOut)
			return
		}
	}
}

var errUnknownEvent = errors.New(MessageUnknownEvent)

func (s *Server) ack(ctx context.Context, c *conn, id json.RawMessage, message string, result any, err error) {
	ack := Ack{Event: EventAck, ID: id, Success: err == nil, Message: message, Payload: Payload{Result: result}}
	if err != nil {
		ack.Message, ack.Payload = s.failure(c, err)
	}
	s.write(ctx, c, ack)
}

func (s *Server) failure(c *conn, err error) (string, Payload) {
	if errors.Is(err, errUnknownEvent) {
		return MessageUnknownEvent, Payload{Error: map[string]string{}}
	}
	status := apperrors.Describe(err, s.production)
	if !status.Operational {
		c.logger.Error().Err(err).Msg("socket event failed")
	}
	var details any = map[string]string{}
	if status.Details != nil {
		details = status.Details
	}
	return status.Message, Payload{Error: details}
}

func (s *Server) push(ctx context.Context, c *conn, message string) {
	s.write(ctx, c, ErrorFrame{Event: EventError, Message: message})
}

func (s *Server) write(ctx context.Context, c *conn, v any) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, v); err != nil {
		c.logger.Debug().Err(err).Msg("socket write failed")
	}
}

// decode unmarshals event data. Missing data leaves dst zero so the request's
// own validation reports what is missing.
func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		verr := apperrors.NewValidationError()
		verr.Add("data", `"data" must be an object`)
		return verr
	}
	return nil
}
