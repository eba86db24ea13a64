package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	assert.Equal(t, ":3000", c.GetPort())
	assert.Equal(t, config.EnvDevelopment, c.GetEnv())
	assert.False(t, c.IsProduction())
	assert.Equal(t, "jwt_secret", c.GetJWTSecret())
	assert.Equal(t, 60000*time.Second, c.GetAccessTokenExpiry())
	assert.Equal(t, 7*24*60*1000*time.Second, c.GetRefreshTokenExpiry())
	assert.Equal(t, "/auth/auth_0/callback", c.GetAuth0RedirectPath())
	assert.Equal(t, "openid profile email", c.GetAuth0Scope())
	assert.Equal(t, config.StoreDriverSQLite, c.GetStoreDriver())
	assert.Equal(t, "global", c.GetGlobalStoreName())
	assert.Equal(t, int64(100), c.GetMaxVisitLimit())
	assert.Equal(t, 10*time.Minute, c.GetRestriction())
	assert.Equal(t, "localhost:6379", c.GetRedisAddr())
	assert.True(t, c.GetAllowedOrigins().IsAllowedOrigin("*"))
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "8443")
	t.Setenv("BASE_URL", "https://auth.example.com/")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "90")
	t.Setenv("CORS_ORIGIN", "https://a.example.com, https://b.example.com")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("MAX_VISIT_LIMIT", "5")
	t.Setenv("AUTH0_VERIFY_ID_TOKEN", "true")

	c, err := config.New()
	require.NoError(t, err)

	assert.True(t, c.IsProduction())
	assert.Equal(t, ":8443", c.GetPort())
	assert.Equal(t, "https://auth.example.com", c.GetBaseURL())
	assert.Equal(t, 90*time.Second, c.GetAccessTokenExpiry())
	assert.Equal(t, config.StoreDriverPostgres, c.GetStoreDriver())
	assert.Equal(t, int64(5), c.GetMaxVisitLimit())
	assert.True(t, c.GetAuth0VerifyIDToken())

	origins := c.GetAllowedOrigins()
	assert.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	assert.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	assert.False(t, origins.IsAllowedOrigin("*"))
}

func TestFromVarsFallbacks(t *testing.T) {
	c := config.FromVars(config.EnvVars{MailerUser: "noreply@example.com"})

	assert.Equal(t, ":3000", c.GetPort())
	assert.Equal(t, "global", c.GetGlobalStoreName())
	assert.Equal(t, "noreply@example.com", c.GetMailerFrom())
	assert.Equal(t, 2*time.Second, c.GetOutboxPollInterval())
	assert.Equal(t, 10, c.GetOutboxMaxAttempts())
}
