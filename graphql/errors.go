package graphql

import (
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
)

// codedError carries the taxonomy tag into the GraphQL error's extensions.
type codedError struct {
	status apperrors.Status
	cause  error
}

func (e *codedError) Error() string {
	return e.status.Message
}

func (e *codedError) Unwrap() error {
	return e.cause
}

func (e *codedError) Extensions() map[string]any {
	ext := map[string]any{
		"code":   e.status.Message,
		"status": e.status.Code,
		"type":   e.status.Type,
	}
	if e.status.Details != nil {
		ext["fields"] = e.status.Details
	}
	return ext
}

func (r *resolver) fail(err error) error {
	return &codedError{status: apperrors.Describe(err, r.production), cause: err}
}
