package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/accounts"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/jrsteele09/go-tenant-auth/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultGlobalStore              = "global"
	DefaultRedirectPath             = "/auth/auth_0/callback"
	DefaultOrganizationRedirectPath = "/organization/auth/auth_0/callback"
)

// Stores resolves the account store of a tenant. tenants.Registry is the
// production implementation.
type Stores interface {
	Resolve(ctx context.Context, tenantID string) (accounts.Repo, error)
}

// Identity is the profile an external provider vouches for.
type Identity struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

type IdentityProvider interface {
	AuthCodeURL(state, redirectPath string) string
	Exchange(ctx context.Context, code, redirectPath string) (*Identity, error)
}

// Notifier receives the welcome event for accounts logging in for the
// first time.
type Notifier interface {
	NotifyWelcome(ctx context.Context, account accounts.Account) error
}

// Deps holds every collaborator of the Service
type Deps struct {
	Stores   Stores
	Tokens   *token.Manager
	States   *token.StateCodec
	Provider IdentityProvider
	Notifier Notifier
}

// LoginResult is returned by every operation that signs an account in.
type LoginResult struct {
	User         *accounts.Account `json:"user"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	Scope        Scope             `json:"-"`
}

// Service registers and signs in accounts in the global store or in a
// tenant's own store.
type Service struct {
	deps                     Deps
	globalStore              string
	redirectPath             string
	organizationRedirectPath string
	logger                   zerolog.Logger
	nowTime                  func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithGlobalStore names the store used for the global scope.
func WithGlobalStore(name string) ServiceOption {
	return func(s *Service) {
		s.globalStore = name
	}
}

// WithRedirectPaths sets the provider callback paths for the global and the
// organization flows.
func WithRedirectPaths(global, organization string) ServiceOption {
	return func(s *Service) {
		s.redirectPath = global
		s.organizationRedirectPath = organization
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Stores == nil {
		return nil, errors.New("[NewService] Stores is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewService] Tokens is required")
	}
	if deps.States == nil {
		return nil, errors.New("[NewService] States is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("[NewService] Provider is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("[NewService] Notifier is required")
	}

	s := &Service{
		deps:                     deps,
		globalStore:              DefaultGlobalStore,
		redirectPath:             DefaultRedirectPath,
		organizationRedirectPath: DefaultOrganizationRedirectPath,
		logger:                   zerolog.Nop(),
		nowTime:                  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Store returns the account store backing scope.
func (s *Service) Store(ctx context.Context, scope Scope) (accounts.Repo, error) {
	if scope.IsGlobal() {
		return s.deps.Stores.Resolve(ctx, s.globalStore)
	}
	if scope.TenantID == s.globalStore {
		verr := apperrors.NewValidationError()
		verr.Add("tenantId", `"tenantId" is reserved`)
		return nil, verr
	}
	return s.deps.Stores.Resolve(ctx, scope.TenantID)
}

// Register creates a password account. The email is checked up front and
// again by the store's unique index.
func (s *Service) Register(ctx context.Context, scope Scope, req RegisterRequest) (account *accounts.Account, err error) {
	defer func() { s.record("register", scope, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	repo, err := s.Store(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Register] Store")
	}

	email := accounts.NormalizeEmail(req.Email)
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrAlreadyRegistered
	} else if !errors.Is(err, accounts.ErrNotFound) {
		return nil, pkgerrors.Wrap(err, "[Service.Register] GetByEmail")
	}

	hash, err := accounts.HashPassword(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Register] HashPassword")
	}

	now := s.nowTime().UTC()
	account = &accounts.Account{
		ID:           uuid.NewString(),
		AuthMethod:   accounts.AuthMethodCustom,
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, account); err != nil {
		if errors.Is(err, accounts.ErrAlreadyExists) {
			return nil, apperrors.ErrAlreadyRegistered
		}
		return nil, pkgerrors.Wrap(err, "[Service.Register] Create")
	}
	return account, nil
}

// Login checks the password and issues a token pair. A non empty channel is
// the socket connection the account is now online on.
func (s *Service) Login(ctx context.Context, scope Scope, req LoginRequest, channel string) (result *LoginResult, err error) {
	defer func() { s.record("login", scope, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	repo, err := s.Store(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Login] Store")
	}

	account, err := repo.GetByEmail(ctx, accounts.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Service.Login] GetByEmail")
	}
	if !accounts.CheckPasswordHash(req.Password, account.PasswordHash) {
		return nil, apperrors.ErrIncorrectPassword
	}

	pair, err := s.deps.Tokens.IssuePair(account.ID, token.AudienceUser, scope.claims())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Login] IssuePair")
	}

	if channel != "" {
		if err := repo.SetOnline(ctx, account.ID, channel); err != nil {
			return nil, pkgerrors.Wrap(err, "[Service.Login] SetOnline")
		}
		account.IsOnline = true
		account.SocketID = channel
	}

	if scope.IsGlobal() && account.WelcomedAt == nil {
		s.welcome(ctx, repo, account)
	}

	return &LoginResult{User: account, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, Scope: scope}, nil
}

// welcome queues the welcome event once per account. Failing to queue it
// never fails the login; the next login tries again.
func (s *Service) welcome(ctx context.Context, repo accounts.Repo, account *accounts.Account) {
	if err := s.deps.Notifier.NotifyWelcome(ctx, *account); err != nil {
		s.logger.Error().Err(err).Str("user", account.ID).Msg("failed to queue welcome notification")
		return
	}
	now := s.nowTime().UTC()
	if err := repo.MarkWelcomed(ctx, account.ID, now); err != nil {
		s.logger.Error().Err(err).Str("user", account.ID).Msg("failed to mark account welcomed")
		return
	}
	account.WelcomedAt = &now
}

// RefreshTokens exchanges a still valid refresh token for a new pair.
func (s *Service) RefreshTokens(ctx context.Context, scope Scope, req RefreshRequest) (pair *token.Pair, err error) {
	defer func() { s.record("refresh", scope, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	claims, err := s.deps.Tokens.Verify(req.RefreshTokenOld)
	if err != nil {
		return nil, err
	}
	if !scope.Admits(claims.TenantID) {
		return nil, fmt.Errorf("%w: token belongs to another scope", apperrors.ErrTokenInvalid)
	}

	repo, err := s.Store(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.RefreshTokens] Store")
	}
	if _, err := repo.GetByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Service.RefreshTokens] GetByID")
	}

	pair, err = s.deps.Tokens.IssuePair(claims.Subject, claims.Audience, scope.claims())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.RefreshTokens] IssuePair")
	}
	return pair, nil
}

// Logout marks whichever account is online on channel as offline.
func (s *Service) Logout(ctx context.Context, scope Scope, channel string) (err error) {
	defer func() { s.record("logout", scope, err) }()

	if channel == "" {
		return nil
	}
	repo, err := s.Store(ctx, scope)
	if err != nil {
		return pkgerrors.Wrap(err, "[Service.Logout] Store")
	}
	if err := repo.SetOfflineBySocket(ctx, channel, s.nowTime().UTC()); err != nil {
		return pkgerrors.Wrap(err, "[Service.Logout] SetOfflineBySocket")
	}
	return nil
}

// LoginLink builds the provider authorization url. The scope travels in the
// signed state so the callback can recover it.
func (s *Service) LoginLink(scope Scope) (string, error) {
	state, err := s.deps.States.Seal(token.State{TenantID: scope.TenantID})
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Service.LoginLink] Seal")
	}
	return s.deps.Provider.AuthCodeURL(state, s.callbackPath(scope)), nil
}

// ProviderCallback completes the provider flow: the state names the scope,
// the code is exchanged for an identity and the matching account is found or
// created.
func (s *Service) ProviderCallback(ctx context.Context, req CallbackRequest) (result *LoginResult, err error) {
	scope := Global()
	defer func() { s.record("provider_callback", scope, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	state, err := s.deps.States.Open(req.State)
	if err != nil {
		return nil, err
	}
	scope = Tenant(state.TenantID)

	identity, err := s.deps.Provider.Exchange(ctx, req.Code, s.callbackPath(scope))
	if err != nil {
		return nil, fmt.Errorf("%w: provider exchange: %v", apperrors.ErrInternal, err)
	}

	repo, err := s.Store(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.ProviderCallback] Store")
	}

	method, authID := accounts.SplitProviderSubject(identity.Subject)
	if authID == "" || method == accounts.AuthMethodCustom {
		return nil, fmt.Errorf("%w: provider subject %q does not name an external account", apperrors.ErrTokenVerificationFailed, identity.Subject)
	}
	account, err := repo.GetByProvider(ctx, method, authID)
	if errors.Is(err, accounts.ErrNotFound) {
		now := s.nowTime().UTC()
		account = &accounts.Account{
			ID:                 uuid.NewString(),
			AuthMethod:         method,
			AuthID:             authID,
			Name:               identity.Name,
			Email:              accounts.NormalizeEmail(identity.Email),
			ProfilePictureLink: identity.Picture,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err = repo.Create(ctx, account); errors.Is(err, accounts.ErrAlreadyExists) {
			return nil, apperrors.ErrAlreadyRegistered
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.ProviderCallback] account")
	}

	pair, err := s.deps.Tokens.IssuePair(account.ID, token.AudienceUser, scope.claims())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.ProviderCallback] IssuePair")
	}
	return &LoginResult{User: account, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, Scope: scope}, nil
}

func (s *Service) callbackPath(scope Scope) string {
	if scope.IsGlobal() {
		return s.redirectPath
	}
	return s.organizationRedirectPath
}

func (s *Service) record(operation string, scope Scope, err error) {
	metrics.AuthOperationsTotal.WithLabelValues(operation, scope.Label(), Outcome(err)).Inc()
	if err != nil {
		s.logger.Debug().Err(err).Str("operation", operation).Str("scope", scope.Label()).Msg("auth operation failed")
	}
}

// Outcome is the metrics label for an operation result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	status := apperrors.Describe(err, true)
	if !status.Operational {
		return "internal_server_error"
	}
	return status.Message
}
