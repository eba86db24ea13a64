package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/internal/testkit"
	"github.com/jrsteele09/go-tenant-auth/ratelimit"
	"github.com/jrsteele09/go-tenant-auth/server"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Payload struct {
		Result json.RawMessage   `json:"result"`
		Error  map[string]string `json:"error"`
	} `json:"payload"`
}

type loginResult struct {
	User         accounts.Account `json:"user"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
}

type testFixture struct {
	stack  *testkit.Stack
	server *server.Server
}

func setupTestFixture(t *testing.T, vars config.EnvVars, options ...server.Option) *testFixture {
	t.Helper()
	return setupWithLimiter(t, vars, nil, options...)
}

func setupWithLimiter(t *testing.T, vars config.EnvVars, limiter *ratelimit.Limiter, options ...server.Option) *testFixture {
	t.Helper()
	stack := testkit.NewStack(t, nil)
	srv, err := server.New(config.FromVars(vars), server.Deps{
		Service:    stack.Service,
		Gatekeeper: stack.Gatekeeper,
		Limiter:    limiter,
	}, options...)
	require.NoError(t, err)
	return &testFixture{stack: stack, server: srv}
}

func (f *testFixture) do(t *testing.T, method, target string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func credentials() map[string]string {
	return map[string]string{"name": testkit.Name, "email": testkit.Email, "password": testkit.Password}
}

func (f *testFixture) login(t *testing.T, path string, headers map[string]string) loginResult {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, path, map[string]string{"email": testkit.Email, "password": testkit.Password}, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, server.MessageLoggedIn, env.Message)
	var result loginResult
	require.NoError(t, json.Unmarshal(env.Payload.Result, &result))
	return result
}

func TestNew_RequiresDeps(t *testing.T) {
	stack := testkit.NewStack(t, nil)
	cfg := config.FromVars(config.EnvVars{})

	_, err := server.New(nil, server.Deps{Service: stack.Service, Gatekeeper: stack.Gatekeeper})
	require.Error(t, err)
	_, err = server.New(cfg, server.Deps{Gatekeeper: stack.Gatekeeper})
	require.Error(t, err)
	_, err = server.New(cfg, server.Deps{Service: stack.Service})
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})

	rec, env := f.do(t, http.MethodPost, server.RouteRegister, credentials(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK, env.Code)
	require.Equal(t, server.MessageRegistered, env.Message)

	var account map[string]any
	require.NoError(t, json.Unmarshal(env.Payload.Result, &account))
	require.Equal(t, testkit.Email, account["email"])
	require.Equal(t, accounts.AuthMethodCustom, account["authMethod"])
	require.NotContains(t, account, "passwordHash")
	require.NotContains(t, account, "PasswordHash")

	rec, env = f.do(t, http.MethodPost, server.RouteRegister, credentials(), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "user_already_registered", env.Message)
	require.Equal(t, "AUTH", env.Type)
	require.Empty(t, env.Payload.Error)
}

func TestRegister_Validation(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})

	rec, env := f.do(t, http.MethodPost, server.RouteRegister, map[string]string{"name": "al", "email": "not-an-email"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", env.Message)
	require.Equal(t, "VALIDATION", env.Type)
	require.Equal(t, `"name" length must be at least 3 characters long`, env.Payload.Error["name"])
	require.Equal(t, `"email" must be a valid email`, env.Payload.Error["email"])
	require.Equal(t, `"password" is required`, env.Payload.Error["password"])

	rec, env = f.do(t, http.MethodPost, server.RouteRegister, "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, env.Payload.Error, "body")

	rec, env = f.do(t, http.MethodPost, server.RouteRegister, nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, env.Payload.Error, "name")
}

func TestRegister_BodyTooLarge(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})

	body := `{"name":"` + strings.Repeat("a", server.MaxBodyBytes) + `"}`
	rec, env := f.do(t, http.MethodPost, server.RouteRegister, body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", env.Message)
	require.Equal(t, fmt.Sprintf(`"body" must not exceed %d bytes`, server.MaxBodyBytes), env.Payload.Error["body"])
}

func TestLoginAndMe(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})
	f.stack.Register(t, auth.Global())

	result := f.login(t, server.RouteLogin, nil)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.Equal(t, testkit.Email, result.User.Email)

	rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, bearer(result.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, server.MessageAuthenticated, env.Message)

	var me accounts.Account
	require.NoError(t, json.Unmarshal(env.Payload.Result, &me))
	require.Equal(t, result.User.ID, me.ID)

	req := httptest.NewRequest(http.MethodGet, server.RouteMe, nil)
	req.AddCookie(&http.Cookie{Name: gatekeeper.AccessTokenName, Value: result.AccessToken})
	cookieRec := httptest.NewRecorder()
	f.server.ServeHTTP(cookieRec, req)
	require.Equal(t, http.StatusOK, cookieRec.Code)
}

func TestLogin_Failures(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})

	rec, env := f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": testkit.Email, "password": testkit.Password}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "user_not_found", env.Message)

	f.stack.Register(t, auth.Global())
	rec, env = f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": testkit.Email, "password": "wrong-password"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "incorrect_password", env.Message)
}

func TestMe_RequiresToken(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})

	rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "access_token_is_required", env.Message)

	rec, env = f.do(t, http.MethodGet, server.RouteMe, nil, bearer("garbage"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_is_invalid", env.Message)
	require.Equal(t, "TOKEN", env.Type)
}

func TestRefreshToken(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})
	f.stack.Register(t, auth.Global())
	result := f.login(t, server.RouteLogin, nil)

	rec, env := f.do(t, http.MethodPost, server.RouteRefreshToken, map[string]string{"refresh_token_old": result.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, server.MessageTokenRefreshed, env.Message)

	var pair map[string]string
	require.NoError(t, json.Unmarshal(env.Payload.Result, &pair))
	require.NotEmpty(t, pair["access_token"])
	require.NotEmpty(t, pair["refresh_token"])

	rec, env = f.do(t, http.MethodPost, server.RouteRefreshToken, map[string]string{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, env.Payload.Error, "refresh_token_old")
}

func TestOrganizationRoutes(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})
	organization := f.stack.Register(t, auth.Global())
	orgTokens := f.login(t, server.RouteLogin, nil)

	rec, env := f.do(t, http.MethodPost, server.RouteOrgRegister, credentials(), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "access_token_is_required", env.Message)

	rec, env = f.do(t, http.MethodPost, server.RouteOrgRegister, credentials(), bearer(orgTokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, server.MessageRegistered, env.Message)

	tenantTokens := f.login(t, server.RouteOrgLogin, bearer(orgTokens.AccessToken))
	require.NotEqual(t, organization.ID, tenantTokens.User.ID)

	headers := bearer(orgTokens.AccessToken)
	headers[gatekeeper.TenantTokenHeader] = tenantTokens.AccessToken
	rec, env = f.do(t, http.MethodGet, server.RouteOrgMe, nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me accounts.Account
	require.NoError(t, json.Unmarshal(env.Payload.Result, &me))
	require.Equal(t, tenantTokens.User.ID, me.ID)

	rec, env = f.do(t, http.MethodPost, server.RouteOrgRefreshToken, map[string]string{"refresh_token_old": tenantTokens.RefreshToken}, bearer(orgTokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, server.MessageTokenRefreshed, env.Message)
}

func TestTenantIsolation(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})
	f.stack.Register(t, auth.Global())
	orgTokens := f.login(t, server.RouteLogin, nil)

	_, _ = f.do(t, http.MethodPost, server.RouteOrgRegister, credentials(), bearer(orgTokens.AccessToken))
	tenantTokens := f.login(t, server.RouteOrgLogin, bearer(orgTokens.AccessToken))

	// A tenant token is not a global token.
	rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, bearer(tenantTokens.AccessToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_is_invalid", env.Message)

	// A global token is not a tenant token.
	headers := bearer(orgTokens.AccessToken)
	headers[gatekeeper.TenantTokenHeader] = orgTokens.AccessToken
	rec, env = f.do(t, http.MethodGet, server.RouteOrgMe, nil, headers)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_is_invalid", env.Message)

	// A second organization cannot use the first one's tenant tokens.
	_, err := f.stack.Service.Register(t.Context(), auth.Global(), auth.RegisterRequest{Name: "globex", Email: "ops@globex.com", Password: testkit.Password})
	require.NoError(t, err)
	other, err := f.stack.Service.Login(t.Context(), auth.Global(), auth.LoginRequest{Email: "ops@globex.com", Password: testkit.Password}, "")
	require.NoError(t, err)

	headers = bearer(other.AccessToken)
	headers[gatekeeper.TenantTokenHeader] = tenantTokens.AccessToken
	rec, env = f.do(t, http.MethodGet, server.RouteOrgMe, nil, headers)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_is_invalid", env.Message)

	rec, env = f.do(t, http.MethodPost, server.RouteOrgRefreshToken, map[string]string{"refresh_token_old": tenantTokens.RefreshToken}, bearer(other.AccessToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_is_invalid", env.Message)

	// The second organization's tenant store does not know the account.
	rec, env = f.do(t, http.MethodPost, server.RouteOrgLogin, map[string]string{"email": testkit.Email, "password": testkit.Password}, bearer(other.AccessToken))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "user_not_found", env.Message)
}

func TestProviderFlow(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})
	f.stack.Provider.Add("code-1", auth.Identity{Subject: "google-oauth2|42", Name: "Alice", Email: "Alice@Example.com", Picture: "https://img.example.com/a.png"})

	rec, env := f.do(t, http.MethodGet, server.RouteAuth0Link, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, server.MessageLinkGenerated, env.Message)

	var link map[string]string
	require.NoError(t, json.Unmarshal(env.Payload.Result, &link))
	parsed, err := url.Parse(link["link"])
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	rec, env = f.do(t, http.MethodGet, server.RouteAuth0Return+"?"+url.Values{"code": {"code-1"}, "state": {state}}.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, server.MessageAuthenticated, env.Message)

	var result loginResult
	require.NoError(t, json.Unmarshal(env.Payload.Result, &result))
	require.Equal(t, "google-oauth2", result.User.AuthMethod)
	require.Equal(t, "42", result.User.AuthID)
	require.Equal(t, "alice@example.com", result.User.Email)

	rec, env = f.do(t, http.MethodGet, server.RouteAuth0Return+"?code=code-1&state=tampered", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_is_invalid", env.Message)

	rec, env = f.do(t, http.MethodGet, server.RouteAuth0Return, nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, env.Payload.Error, "code")
}

func TestOrganizationProviderFlow(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})
	f.stack.Register(t, auth.Global())
	orgTokens := f.login(t, server.RouteLogin, nil)
	f.stack.Provider.Add("code-2", auth.Identity{Subject: "github|7", Name: "Bob", Email: "bob@example.com"})

	_, env := f.do(t, http.MethodGet, server.RouteOrgAuth0Link, nil, bearer(orgTokens.AccessToken))
	var link map[string]string
	require.NoError(t, json.Unmarshal(env.Payload.Result, &link))
	parsed, err := url.Parse(link["link"])
	require.NoError(t, err)
	require.Equal(t, auth.DefaultOrganizationRedirectPath, parsed.Query().Get("redirect_uri"))

	rec, env := f.do(t, http.MethodGet, server.RouteOrgAuth0Return+"?"+url.Values{"code": {"code-2"}, "state": {parsed.Query().Get("state")}}.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result loginResult
	require.NoError(t, json.Unmarshal(env.Payload.Result, &result))
	headers := bearer(orgTokens.AccessToken)
	headers[gatekeeper.TenantTokenHeader] = result.AccessToken
	rec, _ = f.do(t, http.MethodGet, server.RouteOrgMe, nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVisitLimit(t *testing.T) {
	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), 2, 10*time.Minute)
	require.NoError(t, err)
	f := setupWithLimiter(t, config.EnvVars{TrackSiteVisit: true}, limiter)

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, server.RouteMe, nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "too_many_requests", env.Message)
	require.Equal(t, "RATE_LIMIT", env.Type)
	require.Equal(t, "600", rec.Header().Get("Retry-After"))

	// Another route has its own window.
	rec, _ = f.do(t, http.MethodPost, server.RouteLogin, nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVisitLimit_DisabledByConfig(t *testing.T) {
	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), 1, time.Minute)
	require.NoError(t, err)
	f := setupWithLimiter(t, config.EnvVars{TrackSiteVisit: false}, limiter)

	for i := 0; i < 3; i++ {
		rec, _ := f.do(t, http.MethodGet, server.RouteMe, nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{CorsOrigin: "https://app.example.com"})

	rec, _ := f.do(t, http.MethodOptions, server.RouteLogin, nil, map[string]string{"Origin": "https://app.example.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), gatekeeper.TenantTokenHeader)

	rec, _ = f.do(t, http.MethodOptions, server.RouteLogin, nil, map[string]string{"Origin": "https://evil.example.com"})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecover(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	dev := setupTestFixture(t, config.EnvVars{}, server.WithHandler("GET /panic", panicking))
	rec, env := dev.do(t, http.MethodGet, "/panic", nil, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "panic: boom", env.Message)
	require.Equal(t, "INTERNAL", env.Type)

	prod := setupTestFixture(t, config.EnvVars{Env: config.EnvProduction}, server.WithHandler("GET /panic", panicking))
	rec, env = prod.do(t, http.MethodGet, "/panic", nil, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Internal Server Error", env.Message)
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{})

	rec, _ := f.do(t, http.MethodGet, server.RouteHealth, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	_, _ = f.do(t, http.MethodPost, server.RouteLogin, nil, nil)
	rec, _ = f.do(t, http.MethodGet, server.RouteMetrics, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tenant_auth_http_requests_total")
}

func TestRoutes(t *testing.T) {
	f := setupTestFixture(t, config.EnvVars{}, server.WithHandler("GET /socket/auth", http.NotFoundHandler()))

	routes := f.server.Routes()
	require.Contains(t, routes, "POST "+server.RouteRegister)
	require.Contains(t, routes, "GET "+server.RouteOrgMe)
	require.Contains(t, routes, "GET /socket/auth")
}
