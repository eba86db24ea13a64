package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
)

const (
	nameMinLength     = 3
	nameMaxLength     = 30
	passwordMinLength = 8
	passwordMaxLength = 72 // bcrypt ignores anything longer
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	verr := apperrors.NewValidationError()
	checkLength(verr, "name", strings.TrimSpace(r.Name), utf8.RuneCountInString, nameMinLength, nameMaxLength)
	checkEmail(verr, "email", r.Email)
	checkLength(verr, "password", r.Password, byteLength, passwordMinLength, passwordMaxLength)
	return verr.OrNil()
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	verr := apperrors.NewValidationError()
	checkEmail(verr, "email", r.Email)
	checkLength(verr, "password", r.Password, byteLength, passwordMinLength, passwordMaxLength)
	return verr.OrNil()
}

type RefreshRequest struct {
	RefreshTokenOld string `json:"refresh_token_old"`
}

func (r RefreshRequest) Validate() error {
	verr := apperrors.NewValidationError()
	checkRequired(verr, "refresh_token_old", r.RefreshTokenOld)
	return verr.OrNil()
}

// CallbackRequest is what the identity provider sends back to the redirect url.
type CallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (r CallbackRequest) Validate() error {
	verr := apperrors.NewValidationError()
	checkRequired(verr, "code", r.Code)
	return verr.OrNil()
}

func byteLength(s string) int {
	return len(s)
}

func checkRequired(verr *apperrors.ValidationError, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		verr.Add(field, fmt.Sprintf("%q is required", field))
		return false
	}
	return true
}

func checkLength(verr *apperrors.ValidationError, field, value string, length func(string) int, minimum, maximum int) {
	if !checkRequired(verr, field, value) {
		return
	}
	n := length(value)
	if n < minimum {
		verr.Add(field, fmt.Sprintf("%q length must be at least %d characters long", field, minimum))
	}
	if n > maximum {
		verr.Add(field, fmt.Sprintf("%q length must be less than or equal to %d characters long", field, maximum))
	}
}

func checkEmail(verr *apperrors.ValidationError, field, value string) {
	if !checkRequired(verr, field, value) {
		return
	}
	email := accounts.NormalizeEmail(value)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		verr.Add(field, fmt.Sprintf("%q must be a valid email", field))
	}
}
