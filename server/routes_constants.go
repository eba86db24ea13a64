package server

// Route path constants
const (
	// Global scope
	RouteRegister     = "/auth/register"
	RouteLogin        = "/auth/login"
	RouteRefreshToken = "/auth/refresh_token"
	RouteAuth0Link    = "/auth/auth_0/get_link"
	RouteAuth0Return  = "/auth/auth_0/callback"
	RouteMe           = "/auth/me"

	// Tenant scope, the organization is the caller's global account
	RouteOrgRegister     = "/organization/auth/register"
	RouteOrgLogin        = "/organization/auth/login"
	RouteOrgRefreshToken = "/organization/auth/refresh_token"
	RouteOrgAuth0Link    = "/organization/auth/auth_0/get_link"
	RouteOrgAuth0Return  = "/organization/auth/auth_0/callback"
	RouteOrgMe           = "/organization/auth/me"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// Success message tags
const (
	MessageRegistered     = "register_successfully"
	MessageLoggedIn       = "login_successfully"
	MessageTokenRefreshed = "token_refreshed_successfully"
	MessageLinkGenerated  = "link_generated_successfully"
	MessageAuthenticated  = "authenticated_successfully"
)
