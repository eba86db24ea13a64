package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy shared by every transport. Services wrap these sentinels
// and transports map them back with Describe.
var (
	ErrAlreadyRegistered       = errors.New("user already registered")
	ErrNotFound                = errors.New("user not found")
	ErrIncorrectPassword       = errors.New("incorrect password")
	ErrTokenExpired            = errors.New("token has expired")
	ErrTokenInvalid            = errors.New("token is invalid")
	ErrTokenVerificationFailed = errors.New("token verification failed")
	ErrUnauthorized            = errors.New("access token is required")
	ErrNoSession               = errors.New("no active session")
	ErrValidation              = errors.New("validation error")
	ErrInternal                = errors.New("internal error")
)

// ValidationError carries field level detail for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records the first message seen for a field.
func (v *ValidationError) Add(field, message string) {
	if _, ok := v.Fields[field]; ok {
		return
	}
	v.Fields[field] = message
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, v.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Unwrap() error {
	return ErrValidation
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
