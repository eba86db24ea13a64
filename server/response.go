package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

// envelope is the body of every JSON response.
type envelope struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Type    string  `json:"type,omitempty"`
	Payload payload `json:"payload"`
}

type payload struct {
	Result any `json:"result,omitempty"`
	Error  any `json:"error,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeResult(w http.ResponseWriter, message string, result any) {
	writeEnvelope(w, http.StatusOK, envelope{
		Code:    http.StatusOK,
		Message: message,
		Payload: payload{Result: result},
	})
}

// writeError maps err onto the taxonomy. Validation failures carry their
// field map, everything else an empty object.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.Describe(err, s.production)
	if !status.Operational {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}

	var details any = map[string]string{}
	if status.Details != nil {
		details = status.Details
	}
	writeEnvelope(w, status.Code, envelope{
		Code:    status.Code,
		Message: status.Message,
		Type:    status.Type,
		Payload: payload{Error: details},
	})
}

// decodeBody reads a JSON body of at most MaxBodyBytes into dst. An empty body
// leaves dst zero so the request's own validation reports the missing fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	verr := apperrors.NewValidationError()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		verr.Add("body", fmt.Sprintf(`"body" must not exceed %d bytes`, tooLarge.Limit))
		return verr
	}
	verr.Add("body", `"body" must be valid JSON`)
	return verr
}
