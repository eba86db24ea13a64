package gatekeeper

import (
	"net/http"
	"strings"
)

const (
	AccessTokenName   = "access_token"
	TenantTokenHeader = "X-Tenant-Access-Token"
)

// BearerToken reads the Authorization bearer token, falling back to the
// access_token cookie.
func BearerToken(r *http.Request) string {
	if raw, ok := bearer(r.Header.Get("Authorization")); ok {
		return raw
	}
	if cookie, err := r.Cookie(AccessTokenName); err == nil {
		return cookie.Value
	}
	return ""
}

// HandshakeToken reads the token of a socket upgrade request: the
// access_token query field, then the access_token header, then Authorization.
func HandshakeToken(r *http.Request) string {
	if raw := r.URL.Query().Get(AccessTokenName); raw != "" {
		return raw
	}
	if raw := r.Header.Get(AccessTokenName); raw != "" {
		return raw
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw, ok := bearer(header); ok {
		return raw
	}
	return header
}

// TenantToken reads the tenant scoped token sent next to an organization token.
func TenantToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TenantTokenHeader))
}

func bearer(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
