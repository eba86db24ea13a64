// Package testkit assembles an in-memory credential stack for transport
// tests.
package testkit

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	fakeaccountrepo "github.com/jrsteele09/go-tenant-auth/accounts/repofake"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/stretchr/testify/require"
)

const (
	Name     = "alice"
	Email    = "alice@example.com"
	Password = "password123"
)

// Provider is an identity provider that knows a fixed set of codes.
type Provider struct {
	mu         sync.Mutex
	identities map[string]*auth.Identity
}

func (p *Provider) Add(code string, identity auth.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[code] = &identity
}

func (p *Provider) AuthCodeURL(state, redirectPath string) string {
	return "https://idp.example.com/authorize?" + url.Values{"state": {state}, "redirect_uri": {redirectPath}}.Encode()
}

func (p *Provider) Exchange(_ context.Context, code, _ string) (*auth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	identity, ok := p.identities[code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return identity, nil
}

// Notifier records welcome events.
type Notifier struct {
	mu      sync.Mutex
	welcome []accounts.Account
}

func (n *Notifier) NotifyWelcome(_ context.Context, account accounts.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcome = append(n.welcome, account)
	return nil
}

func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.welcome)
}

type Stack struct {
	Registry   *tenants.Registry
	Tokens     *token.Manager
	States     *token.StateCodec
	Provider   *Provider
	Notifier   *Notifier
	Service    *auth.Service
	Gatekeeper *gatekeeper.Gatekeeper
}

// NewStack builds a service over fake account stores. A nil clock uses
// time.Now.
func NewStack(t testing.TB, clock func() time.Time) *Stack {
	t.Helper()
	if clock == nil {
		clock = time.Now
	}

	s := &Stack{
		Provider: &Provider{identities: map[string]*auth.Identity{}},
		Notifier: &Notifier{},
	}

	var err error
	s.Registry, err = tenants.NewRegistry(func(context.Context, string) (accounts.Repo, error) {
		return fakeaccountrepo.NewFakeAccountRepo(), nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Registry.Close() })

	s.Tokens, err = token.New(token.NewHMACSigner("jwt-secret"),
		token.WithTokenExpiry(time.Hour, 24*time.Hour),
		token.WithNowFunc(clock),
	)
	require.NoError(t, err)

	s.States, err = token.NewStateCodec("state-secret", 10*time.Minute, clock)
	require.NoError(t, err)

	s.Service, err = auth.NewService(auth.Deps{
		Stores:   s.Registry,
		Tokens:   s.Tokens,
		States:   s.States,
		Provider: s.Provider,
		Notifier: s.Notifier,
	}, auth.WithNowTime(clock))
	require.NoError(t, err)

	s.Gatekeeper, err = gatekeeper.New(s.Tokens, s.Service)
	require.NoError(t, err)
	return s
}

// Register creates the default account in scope.
func (s *Stack) Register(t testing.TB, scope auth.Scope) *accounts.Account {
	t.Helper()
	account, err := s.Service.Register(context.Background(), scope, auth.RegisterRequest{Name: Name, Email: Email, Password: Password})
	require.NoError(t, err)
	return account
}

// Login signs the default account in to scope.
func (s *Stack) Login(t testing.TB, scope auth.Scope) *auth.LoginResult {
	t.Helper()
	result, err := s.Service.Login(context.Background(), scope, auth.LoginRequest{Email: Email, Password: Password}, "")
	require.NoError(t, err)
	return result
}
