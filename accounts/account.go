package accounts

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-tenant-auth/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	// AuthMethodCustom marks accounts registered with an email and password.
	AuthMethodCustom = "custom"
)

// Account is one credential record, scoped either to the global store or to
// a single tenant store.
type Account struct {
	ID                 string     `json:"id"`
	AuthMethod         string     `json:"authMethod"`
	AuthID             string     `json:"authId,omitempty"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"` // never serialised
	IsOnline           bool       `json:"isOnline"`
	LastSeen           *time.Time `json:"lastSeen,omitempty"`
	SocketID           string     `json:"socketId,omitempty"`
	ProfilePicture     string     `json:"profilePicture,omitempty"`
	ProfilePictureLink string     `json:"profilePictureLink,omitempty"`
	WelcomedAt         *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so repositories never hand out shared pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastSeen != nil {
		c.LastSeen = utils.Ptr(utils.Value(a.LastSeen))
	}
	if a.WelcomedAt != nil {
		c.WelcomedAt = utils.Ptr(utils.Value(a.WelcomedAt))
	}
	return &c
}

func (a *Account) IsProviderAccount() bool {
	return a.AuthMethod != "" && a.AuthMethod != AuthMethodCustom
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitProviderSubject splits an external subject such as "google-oauth2|123"
// into its method and id. A subject without a separator is all method.
func SplitProviderSubject(sub string) (method, authID string) {
	method, authID, _ = strings.Cut(sub, "|")
	return method, authID
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares in constant time. Accounts created through a
// provider have no hash and never match.
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
