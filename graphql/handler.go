package graphql

import (
	"encoding/json"
	"errors"
	"net/http"

	gql "github.com/graphql-go/graphql"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Request is the body of POST /graphql.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

type Handler struct {
	schema gql.Schema
	logger zerolog.Logger
}

type Option func(*Handler, *resolver)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler, _ *resolver) {
		h.logger = logger
	}
}

// WithProduction hides internal error text from clients.
func WithProduction(production bool) Option {
	return func(_ *Handler, r *resolver) {
		r.production = production
	}
}

func NewHandler(service *auth.Service, gate *gatekeeper.Gatekeeper, options ...Option) (*Handler, error) {
	if service == nil {
		return nil, errors.New("[graphql.NewHandler] service is required")
	}
	if gate == nil {
		return nil, errors.New("[graphql.NewHandler] gatekeeper is required")
	}
	h := &Handler{logger: zerolog.Nop()}
	r := &resolver{service: service, gate: gate}
	for _, opt := range options {
		opt(h, r)
	}

	schema, err := newSchema(r)
	if err != nil {
		return nil, err
	}
	h.schema = schema
	return h, nil
}

// ServeHTTP runs one operation. The bearer token, if any, is made available
// to resolvers that need an authenticated account.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []map[string]any{{
				"message":    "query is required",
				"extensions": map[string]any{"code": "validation_error"},
			}},
		})
		return
	}

	result := gql.Do(gql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        withToken(r.Context(), gatekeeper.BearerToken(r)),
	})
	if result.HasErrors() {
		h.logger.Debug().Interface("errors", result.Errors).Msg("graphql operation failed")
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
