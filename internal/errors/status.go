package errors

import (
	"errors"
	"net/http"
)

const (
	TypeAuth       = "AUTH"
	TypeToken      = "TOKEN"
	TypeValidation = "VALIDATION"
	TypeInternal   = "INTERNAL"
	TypeRateLimit  = "RATE_LIMIT"
)

const internalServerError = "Internal Server Error"

// Status is the transport independent description of a failure.
type Status struct {
	Code        int
	Message     string
	Type        string
	Operational bool
	Details     map[string]string
}

var statuses = []struct {
	target error
	status Status
}{
	{ErrAlreadyRegistered, Status{Code: http.StatusConflict, Message: "user_already_registered", Type: TypeAuth}},
	{ErrNotFound, Status{Code: http.StatusNotFound, Message: "user_not_found", Type: TypeAuth}},
	{ErrIncorrectPassword, Status{Code: http.StatusUnauthorized, Message: "incorrect_password", Type: TypeAuth}},
	{ErrTokenExpired, Status{Code: http.StatusUnauthorized, Message: "token_has_expired", Type: TypeToken}},
	{ErrTokenInvalid, Status{Code: http.StatusUnauthorized, Message: "token_is_invalid", Type: TypeToken}},
	{ErrTokenVerificationFailed, Status{Code: http.StatusUnauthorized, Message: "token_verification_failed", Type: TypeToken}},
	{ErrUnauthorized, Status{Code: http.StatusUnauthorized, Message: "access_token_is_required", Type: TypeAuth}},
	{ErrNoSession, Status{Code: http.StatusBadRequest, Message: "no_active_session", Type: TypeAuth}},
	{ErrValidation, Status{Code: http.StatusBadRequest, Message: "validation_error", Type: TypeValidation}},
}

// Describe maps err onto a status code and a stable message tag. Errors
// outside the taxonomy are non-operational; in production their message is
// replaced so internal detail never reaches the caller.
func Describe(err error, production bool) Status {
	for _, s := range statuses {
		if errors.Is(err, s.target) {
			status := s.status
			status.Operational = true
			var verr *ValidationError
			if errors.As(err, &verr) {
				status.Details = verr.Fields
			}
			return status
		}
	}

	status := Status{Code: http.StatusInternalServerError, Message: "internal_server_error", Type: TypeInternal}
	if production {
		status.Message = internalServerError
	} else if err != nil {
		status.Message = err.Error()
	}
	return status
}
