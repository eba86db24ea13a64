package config

import (
	"errors"

	"github.com/joeshaw/envdecode"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	ProviderConfig
	StoreConfig
	SecurityConfig
	RedisConfig
	MailerConfig
	OutboxConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
}

// New decodes the process environment into a Config. Unset variables fall
// back to the defaults carried on the EnvVars struct tags.
func New() (Config, error) {
	vars, err := Decode()
	if err != nil {
		return nil, err
	}
	return mainConfig{EnvVars: vars}, nil
}

// FromVars wraps already populated variables, mostly for tests.
func FromVars(vars EnvVars) Config {
	return mainConfig{EnvVars: vars}
}

func Decode() (EnvVars, error) {
	var vars EnvVars
	if err := envdecode.Decode(&vars); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return EnvVars{}, err
	}
	return vars, nil
}
