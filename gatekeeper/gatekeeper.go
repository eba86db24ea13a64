// Package gatekeeper authenticates requests and socket handshakes against a
// scope's account store.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/auth"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/token"
	pkgerrors "github.com/pkg/errors"
)

type Verifier interface {
	Verify(raw string, options ...token.VerifyOption) (*token.Claims, error)
}

// Stores resolves a scope's account store; auth.Service implements it.
type Stores interface {
	Store(ctx context.Context, scope auth.Scope) (accounts.Repo, error)
}

type Gatekeeper struct {
	tokens Verifier
	stores Stores
}

func New(tokens Verifier, stores Stores) (*Gatekeeper, error) {
	if tokens == nil {
		return nil, errors.New("[gatekeeper.New] token verifier is required")
	}
	if stores == nil {
		return nil, errors.New("[gatekeeper.New] stores is required")
	}
	return &Gatekeeper{tokens: tokens, stores: stores}, nil
}

// Authenticate returns the account raw was issued to. The token must carry
// the user audience and belong to scope.
func (g *Gatekeeper) Authenticate(ctx context.Context, scope auth.Scope, raw string) (*accounts.Account, error) {
	if raw == "" {
		return nil, apperrors.ErrUnauthorized
	}
	claims, err := g.tokens.Verify(raw, token.WithAudience(token.AudienceUser))
	if err != nil {
		return nil, err
	}
	if !scope.Admits(claims.TenantID) {
		return nil, fmt.Errorf("%w: token belongs to another scope", apperrors.ErrTokenInvalid)
	}

	repo, err := g.stores.Store(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Gatekeeper.Authenticate] Store")
	}
	account, err := repo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Gatekeeper.Authenticate] GetByID")
	}
	return account, nil
}
