package gatekeeper

import (
	"context"

	"github.com/jrsteele09/go-tenant-auth/accounts"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyAccount stores the account authenticated in the request's own scope
	ContextKeyAccount      ContextKey = "account"
	// ContextKeyOrganization stores the global account acting as the tenant
	ContextKeyOrganization ContextKey = "organization"
)

func WithAccount(ctx context.Context, account *accounts.Account) context.Context {
	return context.WithValue(ctx, ContextKeyAccount, account)
}

func AccountFrom(ctx context.Context) (*accounts.Account, bool) {
	account, ok := ctx.Value(ContextKeyAccount).(*accounts.Account)
	return account, ok && account != nil
}

func WithOrganization(ctx context.Context, organization *accounts.Account) context.Context {
	return context.WithValue(ctx, ContextKeyOrganization, organization)
}

func OrganizationFrom(ctx context.Context) (*accounts.Account, bool) {
	organization, ok := ctx.Value(ContextKeyOrganization).(*accounts.Account)
	return organization, ok && organization != nil
}
