package config

import "time"

type TokenConfig interface {
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetStateSecret() string
	GetStateExpiry() time.Duration
}

var _ TokenConfig = EnvVars{}

func (e EnvVars) GetJWTSecret() string {
	return e.JWTSecret
}

// GetAccessTokenExpiry reads ACCESS_TOKEN_EXPIRY as seconds.
func (e EnvVars) GetAccessTokenExpiry() time.Duration {
	return time.Duration(e.AccessTokenExpiry) * time.Second
}

func (e EnvVars) GetRefreshTokenExpiry() time.Duration {
	return time.Duration(e.RefreshTokenExpiry) * time.Second
}

func (e EnvVars) GetStateSecret() string {
	return e.StateSecret
}

func (e EnvVars) GetStateExpiry() time.Duration {
	return time.Duration(e.StateExpiry) * time.Second
}
