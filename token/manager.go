package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

const (
	// AudienceUser is bound on every access and refresh token handed to an account.
	AudienceUser = "user"

	ClaimUserID   = "userId"
	ClaimTenantID = "tenantId"
)

var registeredClaims = map[string]struct{}{
	ClaimUserID:   {},
	ClaimTenantID: {},
	"sub":         {},
	"aud":         {},
	"iat":         {},
	"exp":         {},
	"jti":         {},
}

// Pair is the access/refresh token couple returned to clients.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims is the verified content of a token. TenantID is empty for tokens
// minted in the global scope.
type Claims struct {
	Subject   string
	Audience  string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

type Manager struct {
	defaultSigner      Signer
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(defaultSigner Signer, options ...ManagerOption) (*Manager, error) {
	if defaultSigner == nil {
		return nil, errors.New("[token.New] signer is required")
	}
	m := &Manager{defaultSigner: defaultSigner}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.refreshTokenExpiry == 0 {
		m.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// Issue signs a token for subject with the default signer.
func (m *Manager) Issue(subject, audience string, ttl time.Duration, extra map[string]any) (string, error) {
	return m.IssueWithSigner(m.defaultSigner, subject, audience, ttl, extra)
}

// IssueWithSigner signs with a signer other than the default one. Extra
// claims never override the registered ones.
func (m *Manager) IssueWithSigner(signer Signer, subject, audience string, ttl time.Duration, extra map[string]any) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims[ClaimUserID] = subject
	claims["sub"] = subject
	claims["aud"] = audience
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	claims["jti"] = uuid.NewString()

	signed, err := signer.Sign(claims)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Manager.IssueWithSigner] Sign")
	}
	return signed, nil
}

// IssuePair mints an access and a refresh token with the configured expiries.
func (m *Manager) IssuePair(subject, audience string, extra map[string]any) (*Pair, error) {
	access, err := m.Issue(subject, audience, m.accessTokenExpiry, extra)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.IssuePair] access token")
	}
	refresh, err := m.Issue(subject, audience, m.refreshTokenExpiry, extra)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.IssuePair] refresh token")
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

type verifyOptions struct {
	audience string
	signer   Signer
}

type VerifyOption func(*verifyOptions)

// WithAudience requires the token's aud claim to contain audience.
func WithAudience(audience string) VerifyOption {
	return func(o *verifyOptions) {
		o.audience = audience
	}
}

// WithSigner verifies against signer instead of the default one.
func WithSigner(signer Signer) VerifyOption {
	return func(o *verifyOptions) {
		o.signer = signer
	}
}

// Verify checks the signature and expiry of raw. Every failure is one of
// ErrTokenExpired, ErrTokenInvalid or ErrTokenVerificationFailed.
func (m *Manager) Verify(raw string, options ...VerifyOption) (*Claims, error) {
	opts := verifyOptions{signer: m.defaultSigner}
	for _, opt := range options {
		opt(&opts)
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{opts.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	}
	if opts.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(opts.audience))
	}

	parsed, err := jwt.NewParser(parserOptions...).Parse(raw, opts.signer.GetVerificationKey)
	if err != nil {
		return nil, classify(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrTokenVerificationFailed
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperrors.ErrTokenVerificationFailed)
	}

	claims := &Claims{Subject: subject, Extra: map[string]any{}}
	if aud, err := mapClaims.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = aud[0]
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if tenantID, ok := mapClaims[ClaimTenantID].(string); ok {
		claims.TenantID = tenantID
	}
	for k, v := range mapClaims {
		if _, reserved := registeredClaims[k]; !reserved {
			claims.Extra[k] = v
		}
	}
	return claims, nil
}

// classify folds the jwt library's errors into the three token failure
// kinds. Expiry is checked first because jwt joins it with ErrTokenInvalidClaims.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", apperrors.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", apperrors.ErrTokenInvalid, err)
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrTokenVerificationFailed, err)
	}
}

// FailureKind returns a short tag for a Verify error, or "" when err is not a token failure.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrTokenInvalid):
		return "invalid"
	case errors.Is(err, apperrors.ErrTokenVerificationFailed):
		return "verification_failed"
	default:
		return ""
	}
}
