package auth

import "github.com/jrsteele09/go-tenant-auth/token"

const (
	scopeGlobal = "global"
	scopeTenant = "tenant"
)

// Scope selects the account store an operation runs against. The zero value
// is the global scope.
type Scope struct {
	TenantID string
}

func Global() Scope {
	return Scope{}
}

func Tenant(tenantID string) Scope {
	return Scope{TenantID: tenantID}
}

func (s Scope) IsGlobal() bool {
	return s.TenantID == ""
}

// Label is the low cardinality name used in metrics and logs.
func (s Scope) Label() string {
	if s.IsGlobal() {
		return scopeGlobal
	}
	return scopeTenant
}

// claims returns the extra token claims that bind a token to this scope.
func (s Scope) claims() map[string]any {
	if s.IsGlobal() {
		return nil
	}
	return map[string]any{token.ClaimTenantID: s.TenantID}
}

// Admits reports whether a token minted for tenantID may be used here.
func (s Scope) Admits(tenantID string) bool {
	return s.TenantID == tenantID
}
