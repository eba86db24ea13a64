package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
)

// AudienceState marks tokens that travel as the OAuth state parameter.
const AudienceState = "oauth_state"

// State is what survives the round trip through the identity provider.
// An empty TenantID means the global scope.
type State struct {
	TenantID string
	Nonce    string
}

// StateCodec seals State into a signed, expiring token so the callback can
// trust the tenant it names.
type StateCodec struct {
	manager *Manager
	ttl     time.Duration
}

func NewStateCodec(secret string, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	if secret == "" {
		return nil, errors.New("[NewStateCodec] secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("[NewStateCodec] ttl must be positive")
	}
	options := []ManagerOption{}
	if now != nil {
		options = append(options, WithNowFunc(now))
	}
	manager, err := New(NewHMACSigner(secret), options...)
	if err != nil {
		return nil, err
	}
	return &StateCodec{manager: manager, ttl: ttl}, nil
}

func (c *StateCodec) Seal(state State) (string, error) {
	if state.Nonce == "" {
		state.Nonce = uuid.NewString()
	}
	var extra map[string]any
	if state.TenantID != "" {
		extra = map[string]any{ClaimTenantID: state.TenantID}
	}
	return c.manager.Issue(state.Nonce, AudienceState, c.ttl, extra)
}

// Open returns the sealed state. Anything other than an expired state is
// reported as ErrTokenInvalid.
func (c *StateCodec) Open(raw string) (*State, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: state is required", apperrors.ErrTokenInvalid)
	}
	claims, err := c.manager.Verify(raw, WithAudience(AudienceState))
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTokenInvalid, err)
	}
	return &State{TenantID: claims.TenantID, Nonce: claims.Subject}, nil
}
